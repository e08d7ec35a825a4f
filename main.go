package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"host/electrumxproxy/config"
	"host/electrumxproxy/logging"
	"host/electrumxproxy/proxyserver"
	"host/electrumxproxy/tcpconnection"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "electrumx-proxy: %v\n", err)
		os.Exit(2)
	}

	logger, closeLog := logging.New(logging.Options{Debug: cfg.Debug, File: cfg.LogFile})
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridgeMetrics := metrics.NewSet()
	bridge := tcpconnection.NewBridge(tcpconnection.Options{
		Address:     cfg.BackendAddress(),
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		Logger:      logger,
		Metrics:     bridgeMetrics,
	})
	if err := bridge.Connect(ctx); err != nil {
		logger.Error(err, "ElectrumX not reachable yet, the first call will retry", "address", cfg.BackendAddress())
	}
	if cfg.RefreshSchedule != "" {
		if err := bridge.StartRefresh(cfg.RefreshSchedule); err != nil {
			logger.Error(err, "Could not schedule connection refresh")
			os.Exit(1)
		}
	}

	server := proxyserver.New(bridge, logger, metrics.NewSet(), bridgeMetrics)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx, cfg.Listen)
	})

	err = group.Wait()
	if closeErr := bridge.Close(); closeErr != nil {
		logger.V(1).Info("Closing ElectrumX connection failed", "error", closeErr.Error())
	}
	if err != nil {
		logger.Error(err, "Proxy stopped")
		closeLog()
		os.Exit(1)
	}
}
