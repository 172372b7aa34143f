package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func nopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

var probeEnv = []string{"GWN_HOST", "GWN_USERNAME", "GWN_PASSWORD", "GWN_SCHEME", "GWN_TIMEOUT", "GWN_CONFIG"}

// clearProbeEnv unsets every probe variable for the duration of the test.
func clearProbeEnv(t *testing.T) {
	t.Helper()
	for _, k := range probeEnv {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func setEnvAndRun(t *testing.T, env map[string]string, fn func()) {
	t.Helper()
	clearProbeEnv(t)
	for k, v := range env {
		t.Setenv(k, v)
	}
	fn()
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

var fullArgs = []string{"-H", "172.16.171.101", "-U", "admin", "-P", "secret", "-w", "40", "-c", "35"}

func TestNewProbeConfig_Flags(t *testing.T) {
	setEnvAndRun(t, nil, func() {
		cfg, err := NewProbeConfig(fullArgs)
		require.NoError(t, err)
		require.NotNil(t, cfg.Logger)
		require.Equal(t, "172.16.171.101", cfg.Host)
		require.Equal(t, "admin", cfg.Credentials.Username)
		require.Equal(t, "secret", cfg.Credentials.Password)
		require.InDelta(t, 40.0, cfg.Thresholds.Warn, 1e-9)
		require.InDelta(t, 35.0, cfg.Thresholds.Crit, 1e-9)
		require.Equal(t, "http", cfg.Scheme)
		require.Equal(t, defaultTimeout, cfg.Timeout)
		require.False(t, cfg.Verbose)
	})
}

func TestNewProbeConfig_VerboseAndTimeout(t *testing.T) {
	setEnvAndRun(t, nil, func() {
		cfg, err := NewProbeConfig(append([]string{"-v", "-t", "3"}, fullArgs...))
		require.NoError(t, err)
		require.True(t, cfg.Verbose)
		require.Equal(t, 3, cfg.Timeout)
	})
}

func TestNewProbeConfig_MissingRequired(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"no host", []string{"-U", "admin", "-P", "pw", "-w", "40", "-c", "35"}},
		{"no user", []string{"-H", "10.0.0.1", "-P", "pw", "-w", "40", "-c", "35"}},
		{"no password", []string{"-H", "10.0.0.1", "-U", "admin", "-w", "40", "-c", "35"}},
		{"no warn", []string{"-H", "10.0.0.1", "-U", "admin", "-P", "pw", "-c", "35"}},
		{"no crit", []string{"-H", "10.0.0.1", "-U", "admin", "-P", "pw", "-w", "40"}},
		{"help", []string{"-h"}},
		{"non-numeric warn", []string{"-H", "10.0.0.1", "-U", "admin", "-P", "pw", "-w", "abc", "-c", "35"}},
		{"unknown flag", append([]string{"-x"}, fullArgs...)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setEnvAndRun(t, nil, func() {
				cfg, err := NewProbeConfig(tc.args)
				require.ErrorIs(t, err, ErrUsage)
				require.NotNil(t, cfg)
				require.NotNil(t, cfg.Logger)
			})
		})
	}
}

func TestNewProbeConfig_EmptyCredentialsAccepted(t *testing.T) {
	setEnvAndRun(t, nil, func() {
		cfg, err := NewProbeConfig([]string{"-H", "10.0.0.1", "-U", "", "-P", "", "-w", "40", "-c", "35"})
		require.NoError(t, err)
		require.Empty(t, cfg.Credentials.Username)
		require.Empty(t, cfg.Credentials.Password)
	})
}

func TestNewProbeConfig_Thresholds(t *testing.T) {
	cases := []struct {
		name    string
		warn    string
		crit    string
		wantErr bool
	}{
		{"crit below warn", "40", "35", false},
		{"crit equals warn", "40", "40", false},
		{"crit above warn", "35", "40", true},
		{"zero warn", "0", "35", true},
		{"zero crit", "40", "0", true},
		{"negative warn", "-1", "-2", true},
		{"negative crit", "40", "-5", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setEnvAndRun(t, nil, func() {
				args := []string{"-H", "10.0.0.1", "-U", "admin", "-P", "pw", "-w", tc.warn, "-c", tc.crit}
				_, err := NewProbeConfig(args)
				if tc.wantErr {
					require.ErrorIs(t, err, ErrInvalidThresholds)
					return
				}
				require.NoError(t, err)
			})
		})
	}
}

func TestNewProbeConfig_Version(t *testing.T) {
	setEnvAndRun(t, nil, func() {
		cfg, err := NewProbeConfig([]string{"-version"})
		require.NoError(t, err)
		require.True(t, cfg.ShowVersion)
	})
}

func TestReadProbeEnvironment(t *testing.T) {
	env := map[string]string{
		"GWN_HOST":     "10.1.1.1",
		"GWN_USERNAME": "ops",
		"GWN_PASSWORD": "",
		"GWN_SCHEME":   "HTTPS",
		"GWN_TIMEOUT":  "7",
	}
	setEnvAndRun(t, env, func() {
		cfg := &ProbeConfig{Logger: nopLogger()}
		var have provided
		readProbeEnvironment(cfg, &have)

		require.Equal(t, "10.1.1.1", cfg.Host)
		require.Equal(t, "ops", cfg.Credentials.Username)
		require.Empty(t, cfg.Credentials.Password)
		require.Equal(t, "https", cfg.Scheme)
		require.Equal(t, 7, cfg.Timeout)
		require.True(t, have.host && have.username && have.password)
		require.False(t, have.warn || have.crit)
	})
}

func TestReadProbeEnvironment_InvalidTimeout(t *testing.T) {
	setEnvAndRun(t, map[string]string{"GWN_TIMEOUT": "soon"}, func() {
		cfg := &ProbeConfig{Timeout: 4, Logger: nopLogger()}
		readProbeEnvironment(cfg, &provided{})
		require.Equal(t, 4, cfg.Timeout)
	})
}

func TestNewProbeConfig_EnvWinsOverFlags(t *testing.T) {
	setEnvAndRun(t, map[string]string{"GWN_HOST": "10.9.9.9", "GWN_PASSWORD": "fromenv"}, func() {
		cfg, err := NewProbeConfig(fullArgs)
		require.NoError(t, err)
		require.Equal(t, "10.9.9.9", cfg.Host)
		require.Equal(t, "fromenv", cfg.Credentials.Password)
	})
}

func TestNewProbeConfig_JSONFile(t *testing.T) {
	path := writeFile(t, "probe.json", `{
		"host": "10.2.2.2",
		"username": "admin",
		"password": "pw",
		"warn": 42.5,
		"crit": 36,
		"timeout": "5s"
	}`)
	setEnvAndRun(t, nil, func() {
		cfg, err := NewProbeConfig([]string{"-config", path})
		require.NoError(t, err)
		require.Equal(t, "10.2.2.2", cfg.Host)
		require.Equal(t, "pw", cfg.Credentials.Password)
		require.InDelta(t, 42.5, cfg.Thresholds.Warn, 1e-9)
		require.InDelta(t, 36.0, cfg.Thresholds.Crit, 1e-9)
		require.Equal(t, 5, cfg.Timeout)
		require.Equal(t, path, cfg.ConfigPath)
	})
}

func TestNewProbeConfig_YAMLFileFromEnvAndFlagOverride(t *testing.T) {
	path := writeFile(t, "probe.yaml", `
host: 10.3.3.3
scheme: https
username: admin
password: pw
warn: 40
crit: 35
`)
	setEnvAndRun(t, map[string]string{"GWN_CONFIG": path}, func() {
		cfg, err := NewProbeConfig([]string{"-c", "30"})
		require.NoError(t, err)
		require.Equal(t, "10.3.3.3", cfg.Host)
		require.Equal(t, "https", cfg.Scheme)
		require.InDelta(t, 40.0, cfg.Thresholds.Warn, 1e-9)
		require.InDelta(t, 30.0, cfg.Thresholds.Crit, 1e-9)
	})
}

func TestNewProbeConfig_BadFileTimeout(t *testing.T) {
	path := writeFile(t, "probe.json", `{"timeout": "ten seconds"}`)
	setEnvAndRun(t, nil, func() {
		_, err := NewProbeConfig(append([]string{"-config", path}, fullArgs...))
		require.Error(t, err)
		require.Contains(t, err.Error(), "load config file")
		require.Contains(t, err.Error(), "ten seconds")
		require.NotErrorIs(t, err, ErrUsage)
	})
}

func TestNewProbeConfig_TimeoutUpperBound(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr bool
	}{
		{"flag at bound", []string{"-t", "300"}, nil, false},
		{"flag above bound", []string{"-t", "301"}, nil, true},
		{"huge flag", []string{"-t", "99999999999"}, nil, true},
		{"huge env", nil, map[string]string{"GWN_TIMEOUT": "99999999999"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setEnvAndRun(t, tc.env, func() {
				cfg, err := NewProbeConfig(append(tc.args, fullArgs...))
				if !tc.wantErr {
					require.NoError(t, err)
					require.Equal(t, 300, cfg.Timeout)
					return
				}
				require.Error(t, err)
				require.Contains(t, err.Error(), "timeout must be at most 300")
			})
		})
	}
}

func TestNewProbeConfig_BadFile(t *testing.T) {
	setEnvAndRun(t, nil, func() {
		_, err := NewProbeConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.json")})
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrUsage)

		bad := writeFile(t, "bad.json", `{"warn": "forty"}`)
		_, err = NewProbeConfig([]string{"-config", bad})
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *ProbeConfig {
		cfg := &ProbeConfig{Host: "10.0.0.1", Scheme: "http", Timeout: 10}
		cfg.Thresholds.Warn, cfg.Thresholds.Crit = 40, 35
		return cfg
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Thresholds.Crit = 45
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidThresholds)
	require.Contains(t, err.Error(), "crit must not exceed warn")

	cfg = base()
	cfg.Timeout = 0
	err = cfg.Validate()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidThresholds)
	require.Contains(t, err.Error(), "timeout must be greater than 0")

	cfg = base()
	cfg.Scheme = "ftp"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "scheme must be one of")

	cfg = base()
	cfg.Host = ""
	require.Contains(t, cfg.Validate().Error(), "host is required")
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(false)
	require.NoError(t, err)
	require.False(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger(true)
	require.NoError(t, err)
	require.True(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))
}
