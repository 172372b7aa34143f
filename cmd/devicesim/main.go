package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/gwn-voltage/internal/buildinfo"
	"github.com/and161185/gwn-voltage/internal/config"
	"github.com/and161185/gwn-voltage/internal/devicesim"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	buildinfo.PrintBuildInfo(os.Stdout, buildVersion, buildDate, buildCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewSimulatorConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(2)
	}

	cfg.Logger.Infof("Simulator config: Addr=%s, Username=%q, Millivolts=%.0f", cfg.Addr, cfg.Username, cfg.Millivolts)

	d := devicesim.New(cfg.Username, cfg.Password, cfg.Millivolts, cfg.Logger)
	if err := d.Run(ctx, cfg.Addr); err != nil {
		cfg.Logger.Fatal(err)
	}
}
