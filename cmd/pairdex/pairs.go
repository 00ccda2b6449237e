package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairdex/internal/config"
	"pairdex/internal/storage"
)

func runPairs(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPairs(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
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

	feeRate, ok, err := backend.LoadFeeRate(ctx)
	if err != nil {
		return fmt.Errorf("load fee rate: %w", err)
	}
	pairs, err := backend.LoadPairs(ctx)
	if err != nil {
		return fmt.Errorf("load pairs: %w", err)
	}
	logger.Info("pairs loaded", zap.String("store", cfg.Store), zap.Int("pairs", len(pairs)), zap.Bool("fee_rate_set", ok))

	enc := json.NewEncoder(os.Stdout)
	if ok {
		if err := enc.Encode(map[string]uint32{"fee_rate": feeRate}); err != nil {
			return err
		}
	}
	for _, p := range pairs {
		if err := enc.Encode(p.View()); err != nil {
			return err
		}
	}
	return nil
}
