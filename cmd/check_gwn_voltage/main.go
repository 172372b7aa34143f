package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/gwn-voltage/internal/auth"
	"github.com/and161185/gwn-voltage/internal/buildinfo"
	"github.com/and161185/gwn-voltage/internal/check"
	"github.com/and161185/gwn-voltage/internal/client"
	"github.com/and161185/gwn-voltage/internal/config"
	"github.com/and161185/gwn-voltage/model"
	"github.com/google/uuid"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

const (
	usageMessage = "Usage: check_gwn_voltage -H <ip> -U <user> -P <pass> -w <warn_volts> -c <crit_volts>\n" +
		"Example: check_gwn_voltage -H 172.16.171.101 -U admin -P secret -w 40 -c 35"
	invalidThresholdsMessage = "Invalid threshold range provided. Critical threshold must be lower than " +
		"Warning threshold, and both must be positive values."
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// run executes one check and returns the process exit code. Only the
// status line is written to stdout.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	cfg, err := config.NewProbeConfig(args)
	if err == nil && cfg.ShowVersion {
		buildinfo.PrintBuildInfo(stdout, buildVersion, buildDate, buildCommit)
		return 0
	}
	if err != nil {
		return report(stdout, configOutcome(err))
	}

	logger := cfg.Logger.With("run_id", uuid.NewString(), "device", cfg.Host)
	defer logger.Sync() //nolint:errcheck

	logger.Debugw("starting check",
		"scheme", cfg.Scheme,
		"timeout", cfg.Timeout,
		"warn", cfg.Thresholds.Warn,
		"crit", cfg.Thresholds.Crit,
		"user", cfg.Credentials.Username,
	)

	c := client.NewClient(cfg, logger)
	checker := check.NewChecker(
		c,
		auth.NewAuthenticator(c, logger),
		client.NewEndpoints(cfg.Scheme, cfg.Host),
		cfg.Host,
		cfg.Credentials,
		cfg.Thresholds,
		logger,
	)
	return report(stdout, checker.Run(ctx))
}

func configOutcome(err error) model.Outcome {
	switch {
	case errors.Is(err, config.ErrUsage):
		return model.Outcome{Status: model.Unknown, Message: usageMessage}
	case errors.Is(err, config.ErrInvalidThresholds):
		return model.Outcome{Status: model.Unknown, Message: invalidThresholdsMessage}
	default:
		return model.Outcome{Status: model.Unknown, Message: err.Error()}
	}
}

func report(w io.Writer, out model.Outcome) int {
	fmt.Fprintln(w, out.String())
	return out.Status.ExitCode()
}
