package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairdex/internal/api"
	"pairdex/internal/config"
	"pairdex/internal/ledger"
	"pairdex/internal/metrics"
	"pairdex/internal/storage"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	owner, err := cfg.OwnerAddress()
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, storage.Options{
		Kind:      cfg.Store,
		StateFile: cfg.StateFile,
		PgDSN:     cfg.PGDSN,
		BadgerDir: cfg.BadgerDir,
	}, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	var sink ledger.TransferSink
	if pgSink, ok := backend.(ledger.TransferSink); ok && cfg.Store == storage.KindPostgres {
		sink = pgSink
	} else if cfg.TransfersOut != "" {
		sink = storage.NewJsonlTransferSink(cfg.TransfersOut)
	}
	if sink != nil {
		sink = storage.NewRetryingSink(sink, cfg.SettleRetries, cfg.SettleBackoff, logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	l, err := ledger.Open(ctx, ledger.Config{
		Owner:     owner,
		FeeRate:   cfg.FeeRate,
		BaseAsset: cfg.BaseAsset,
	}, backend, sink, metrics.New(reg), logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.String("store", cfg.Store),
		zap.String("transfers_out", cfg.TransfersOut),
		zap.Uint32("fee_rate", l.FeeRate()),
		zap.String("base_asset", l.BaseAsset()),
	)

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(l, reg, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
