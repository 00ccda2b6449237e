package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "pairdex",
		Short:        "Constant-product pair ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pair ledger over HTTP",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("owner", "", "owner account address (hex)")
	serveCmd.Flags().Uint32("fee-rate", 3, "swap fee in thousandths, fixed once stored")
	serveCmd.Flags().String("base-asset", "NATIVE", "base currency identifier")
	serveCmd.Flags().String("store", "memory", "state store (memory, file, postgres, badger)")
	serveCmd.Flags().String("state-file", "./data/state.json", "state snapshot path for the file store")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for the postgres store")
	serveCmd.Flags().String("badger-dir", "./data/badger", "badger data directory")
	serveCmd.Flags().String("transfers-out", "./data/transfers.jsonl", "settlement journal JSONL path")
	serveCmd.Flags().Int("settle-retries", 3, "settlement retry attempts before rolling back")
	serveCmd.Flags().Duration("settle-backoff", 200*time.Millisecond, "initial settlement retry backoff")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against given reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("token-liquidity", "", "token reserve")
	quoteCmd.Flags().String("base-liquidity", "", "base reserve")
	quoteCmd.Flags().Uint32("fee-rate", 3, "swap fee in thousandths")
	quoteCmd.Flags().String("qty", "", "input quantity")
	quoteCmd.Flags().String("direction", "base-to-token", "swap direction (base-to-token, token-to-base)")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	pairsCmd := &cobra.Command{
		Use:   "pairs",
		Short: "Print stored pair state",
		RunE:  runPairs,
	}

	pairsCmd.Flags().String("store", "file", "state store (memory, file, postgres, badger)")
	pairsCmd.Flags().String("state-file", "./data/state.json", "state snapshot path for the file store")
	pairsCmd.Flags().String("pg-dsn", "", "Postgres DSN for the postgres store")
	pairsCmd.Flags().String("badger-dir", "./data/badger", "badger data directory")
	pairsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(pairsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
