package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairdex/internal/config"
	"pairdex/internal/ledger"
	"pairdex/internal/model"
	"pairdex/internal/pricing"
)

type quoteOutput struct {
	Direction   string `json:"direction"`
	Qty         string `json:"qty"`
	FeeRate     uint32 `json:"fee_rate"`
	AmountOut   string `json:"amount_out"`
	NoFee       string `json:"amount_out_no_fee"`
	Fee         string `json:"fee"`
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := pricing.ValidateFeeRate(cfg.FeeRate); err != nil {
		return fmt.Errorf("fee rate %d: %w", cfg.FeeRate, err)
	}
	dir, err := ledger.ParseDirection(cfg.Direction)
	if err != nil {
		return err
	}
	tokenLiq, err := model.ParseAmount(cfg.TokenLiquidity)
	if err != nil {
		return fmt.Errorf("token-liquidity: %w", err)
	}
	baseLiq, err := model.ParseAmount(cfg.BaseLiquidity)
	if err != nil {
		return fmt.Errorf("base-liquidity: %w", err)
	}
	qty, err := model.ParseAmount(cfg.Qty)
	if err != nil {
		return fmt.Errorf("qty: %w", err)
	}

	reserveIn, reserveOut := baseLiq, tokenLiq
	if dir == ledger.TokenToBase {
		reserveIn, reserveOut = tokenLiq, baseLiq
	}

	withFee, err := pricing.AmountOut(reserveIn, reserveOut, qty, cfg.FeeRate)
	if err != nil {
		return err
	}
	noFee, err := pricing.AmountOutNoFee(reserveIn, reserveOut, qty)
	if err != nil {
		return err
	}
	num, err := pricing.Numerator(reserveOut, qty, cfg.FeeRate)
	if err != nil {
		return err
	}
	den, err := pricing.Denominator(reserveIn, qty, cfg.FeeRate)
	if err != nil {
		return err
	}

	logger.Debug("quote computed",
		zap.String("direction", string(dir)),
		zap.Stringer("reserve_in", reserveIn),
		zap.Stringer("reserve_out", reserveOut),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(quoteOutput{
		Direction:   string(dir),
		Qty:         qty.String(),
		FeeRate:     cfg.FeeRate,
		AmountOut:   withFee.String(),
		NoFee:       noFee.String(),
		Fee:         new(big.Int).Sub(noFee, withFee).String(),
		Numerator:   num.String(),
		Denominator: den.String(),
	})
}
