// Package config provides application configuration structures and helpers.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/and161185/gwn-voltage/model"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const defaultTimeout = 10

var (
	// ErrUsage means a required setting is missing or a flag could not be parsed.
	ErrUsage = errors.New("usage")
	// ErrInvalidThresholds means the warn/crit pair is out of range.
	ErrInvalidThresholds = errors.New("invalid thresholds")
)

var validate = validator.New()

// ProbeConfig holds the settings for one check run.
type ProbeConfig struct {
	Host    string `validate:"required"`         // Device address, IP or host[:port]
	Scheme  string `validate:"oneof=http https"` // URL scheme of the device API
	Timeout int    `validate:"gt=0,max=300"`     // HTTP timeout per call (in seconds)

	Credentials model.Credentials // Device login
	Thresholds  model.Thresholds  // Lower voltage bounds
	Verbose     bool              // Debug logging to stderr
	ShowVersion bool              // Print build info and exit
	ConfigPath  string            // Optional JSON/YAML file

	Logger *zap.SugaredLogger `validate:"-"`
}

// provided records which required settings were supplied by any layer.
type provided struct {
	host, username, password, warn, crit bool
}

func (p provided) complete() bool {
	return p.host && p.username && p.password && p.warn && p.crit
}

// NewProbeConfig builds a ProbeConfig from defaults, an optional config file,
// command-line args and the environment, in that order of precedence
// (environment wins). The returned config always carries a logger, even
// when an error is returned.
func NewProbeConfig(args []string) (*ProbeConfig, error) {
	cfg := &ProbeConfig{
		Scheme:  "http",
		Timeout: defaultTimeout,
		Logger:  zap.NewNop().Sugar(),
	}
	var have provided

	fs := flag.NewFlagSet("check_gwn_voltage", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var fHost, fUser, fPass, fConf strFlag
	var fWarn, fCrit floatFlag
	var fTO intFlag
	var fVerbose, fVersion boolFlag
	fs.Var(&fHost, "H", "device IP address")
	fs.Var(&fUser, "U", "device username")
	fs.Var(&fPass, "P", "device password")
	fs.Var(&fWarn, "w", "warning threshold (volts)")
	fs.Var(&fCrit, "c", "critical threshold (volts)")
	fs.Var(&fTO, "t", "HTTP timeout (seconds)")
	fs.Var(&fVerbose, "v", "debug logging to stderr")
	fs.Var(&fVersion, "version", "print build info")
	fs.Var(&fConf, "config", "Path to JSON or YAML config file")

	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	cfg.Verbose = fVerbose.v
	cfg.ShowVersion = fVersion.v
	if cfg.ShowVersion {
		return cfg, nil
	}

	logger, err := NewLogger(cfg.Verbose)
	if err != nil {
		return cfg, fmt.Errorf("build logger: %w", err)
	}
	cfg.Logger = logger

	if fConf.v == "" {
		fConf.v = os.Getenv("GWN_CONFIG")
	}
	cfg.ConfigPath = fConf.v
	if cfg.ConfigPath != "" {
		pf, err := loadProbeFile(cfg.ConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := applyProbeFile(cfg, pf, &have); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if fHost.set {
		cfg.Host, have.host = fHost.v, true
	}
	if fUser.set {
		cfg.Credentials.Username, have.username = fUser.v, true
	}
	if fPass.set {
		cfg.Credentials.Password, have.password = fPass.v, true
	}
	if fWarn.set {
		cfg.Thresholds.Warn, have.warn = fWarn.v, true
	}
	if fCrit.set {
		cfg.Thresholds.Crit, have.crit = fCrit.v, true
	}
	if fTO.set {
		cfg.Timeout = fTO.v
	}

	readProbeEnvironment(cfg, &have)

	if !have.complete() {
		return cfg, ErrUsage
	}
	return cfg, cfg.Validate()
}

func applyProbeFile(cfg *ProbeConfig, pf *probeFile, have *provided) error {
	if pf.Host != nil {
		cfg.Host, have.host = *pf.Host, true
	}
	if pf.Scheme != nil {
		cfg.Scheme = *pf.Scheme
	}
	if pf.Username != nil {
		cfg.Credentials.Username, have.username = *pf.Username, true
	}
	if pf.Password != nil {
		cfg.Credentials.Password, have.password = *pf.Password, true
	}
	if pf.Warn != nil {
		cfg.Thresholds.Warn, have.warn = *pf.Warn, true
	}
	if pf.Crit != nil {
		cfg.Thresholds.Crit, have.crit = *pf.Crit, true
	}
	if pf.Timeout != nil {
		sec, err := parseDurationSeconds(*pf.Timeout)
		if err != nil {
			return fmt.Errorf("timeout %q: %w", *pf.Timeout, err)
		}
		cfg.Timeout = sec
	}
	return nil
}

func readProbeEnvironment(cfg *ProbeConfig, have *provided) {
	if host := os.Getenv("GWN_HOST"); host != "" {
		cfg.Host, have.host = host, true
	}
	if user, ok := os.LookupEnv("GWN_USERNAME"); ok {
		cfg.Credentials.Username, have.username = user, true
	}
	if pass, ok := os.LookupEnv("GWN_PASSWORD"); ok {
		cfg.Credentials.Password, have.password = pass, true
	}
	if scheme := os.Getenv("GWN_SCHEME"); scheme != "" {
		cfg.Scheme = strings.ToLower(scheme)
	}

	timeoutEnv := os.Getenv("GWN_TIMEOUT")
	if timeoutEnv != "" {
		v, err := strconv.Atoi(timeoutEnv)
		if err == nil {
			cfg.Timeout = v
		} else {
			cfg.Logger.Warnf("invalid GWN_TIMEOUT env var: %v", err)
		}
	}
}

// Validate checks the configuration. Threshold violations are reported as
// ErrInvalidThresholds so the caller can print the dedicated message.
func (cfg *ProbeConfig) Validate() error {
	if err := validate.Struct(cfg.Thresholds); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidThresholds, describe(err))
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %s", describe(err))
	}
	return nil
}

// describe turns validator errors into "field: message" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "ltefield":
			msgs = append(msgs, fmt.Sprintf("%s must not exceed %s", field, strings.ToLower(e.Param())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// NewLogger builds the probe logger. Output goes to stderr so stdout only
// carries the status line.
func NewLogger(verbose bool) (*zap.SugaredLogger, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	logCfg.ErrorOutputPaths = []string{"stderr"}
	logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
