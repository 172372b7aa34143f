package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// SimulatorConfig holds the settings for the device simulator.
type SimulatorConfig struct {
	Addr       string  `validate:"required"` // Listen address
	Username   string  // Accepted login name
	Password   string  // Accepted password
	Millivolts float64 `validate:"gte=0"` // Reported input voltage

	Logger *zap.SugaredLogger `validate:"-"`
}

// NewSimulatorConfig parses args and the environment (environment wins).
func NewSimulatorConfig(args []string) (*SimulatorConfig, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stdout"}
	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	// defaults
	cfg := &SimulatorConfig{
		Addr:       "localhost:8080",
		Username:   "admin",
		Password:   "admin",
		Millivolts: 48000,
		Logger:     logger.Sugar(),
	}

	fs := flag.NewFlagSet("devicesim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "listen address")
	fs.StringVar(&cfg.Username, "u", cfg.Username, "accepted username")
	fs.StringVar(&cfg.Password, "p", cfg.Password, "accepted password")
	fs.Float64Var(&cfg.Millivolts, "mv", cfg.Millivolts, "reported input voltage (millivolts)")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	readSimulatorEnvironment(cfg)

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %s", describe(err))
	}
	return cfg, nil
}

func readSimulatorEnvironment(cfg *SimulatorConfig) {
	if addr := os.Getenv("SIM_ADDRESS"); addr != "" {
		cfg.Addr = addr
	}
	if user, ok := os.LookupEnv("SIM_USERNAME"); ok {
		cfg.Username = user
	}
	if pass, ok := os.LookupEnv("SIM_PASSWORD"); ok {
		cfg.Password = pass
	}

	mvEnv := os.Getenv("SIM_MILLIVOLTS")
	if mvEnv != "" {
		v, err := strconv.ParseFloat(mvEnv, 64)
		if err == nil {
			cfg.Millivolts = v
		} else {
			cfg.Logger.Warnf("invalid SIM_MILLIVOLTS env var: %v", err)
		}
	}
}
