package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairdex/internal/metrics"
	"pairdex/internal/model"
	"pairdex/internal/pricing"
)

// Direction names the side a swap pays in.
type Direction string

const (
	BaseToToken Direction = "base-to-token"
	TokenToBase Direction = "token-to-base"
)

// ParseDirection accepts the two direction names.
func ParseDirection(value string) (Direction, error) {
	switch Direction(value) {
	case BaseToToken, TokenToBase:
		return Direction(value), nil
	default:
		return "", fmt.Errorf("unknown direction %q", value)
	}
}

// Correction kinds applied after a swap.
const (
	CorrectionNone      = "none"
	CorrectionDown      = "down"
	CorrectionUp        = "up"
	CorrectionUpClamped = "up_clamped"
)

// SwapResult describes a settled swap.
type SwapResult struct {
	TokenID          string
	AssetIn          string
	AmountIn         *big.Int
	AssetOut         string
	AmountOut        *big.Int
	Fee              *big.Int
	Correction       string
	CorrectionAmount *big.Int
	K                *big.Int
	InitialK         *big.Int
}

// SwapBaseForToken sells the attached base payment for tokenID.
func (l *Ledger) SwapBaseForToken(ctx context.Context, caller common.Address, tokenID string, payment model.Payment) (SwapResult, error) {
	const op = "swap_base_for_token"
	if payment.Asset != l.cfg.BaseAsset {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s: %w: got %q, want %q", op, ErrAssetMismatch, payment.Asset, l.cfg.BaseAsset))
	}
	return l.swap(ctx, op, caller, tokenID, BaseToToken, payment.Amount)
}

// SwapTokenForBase sells the attached token payment for base currency.
func (l *Ledger) SwapTokenForBase(ctx context.Context, caller common.Address, payment model.Payment) (SwapResult, error) {
	const op = "swap_token_for_base"
	if payment.Asset == "" || payment.Asset == l.cfg.BaseAsset {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s: %w: got %q, want a token", op, ErrAssetMismatch, payment.Asset))
	}
	return l.swap(ctx, op, caller, payment.Asset, TokenToBase, payment.Amount)
}

// sides returns the input liquidity, output liquidity and output earnings of p for dir.
// The returned pointers alias p's fields.
func sides(p *model.Pair, dir Direction) (in, out, earnings *big.Int) {
	if dir == BaseToToken {
		return p.BaseLiquidity, p.TokenLiquidity, p.TokenEarnings
	}
	return p.TokenLiquidity, p.BaseLiquidity, p.BaseEarnings
}

func (l *Ledger) swap(ctx context.Context, op string, caller common.Address, tokenID string, dir Direction, amountIn *big.Int) (SwapResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s: %w: swap amount must be positive", op, ErrInvalidAmount))
	}
	s := l.lookup(tokenID, false)
	if s == nil {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s %s: %w", op, tokenID, ErrPairStillFunding))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pair.Status() != model.StatusSuccessful {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s %s: %w", op, tokenID, ErrPairStillFunding))
	}

	next := s.pair.Clone()
	reserveIn, reserveOut, earnings := sides(&next, dir)

	withFee, err := pricing.AmountOut(reserveIn, reserveOut, amountIn, l.cfg.FeeRate)
	if err != nil {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s %s: price: %w", op, tokenID, err))
	}
	noFee, err := pricing.AmountOutNoFee(reserveIn, reserveOut, amountIn)
	if err != nil {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s %s: price without fee: %w", op, tokenID, err))
	}
	earned := new(big.Int).Sub(noFee, withFee)
	if reserveOut.Cmp(noFee) < 0 || earned.Sign() < 0 {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s %s: %w", op, tokenID, ErrInsufficientLiquidity))
	}

	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, noFee)
	earnings.Add(earnings, earned)

	kind, step, err := l.correct(&next, dir)
	if err != nil {
		return SwapResult{}, l.reject(op, fmt.Errorf("%s %s: %w", op, tokenID, err))
	}
	settle(&next)

	assetIn, assetOut := l.cfg.BaseAsset, tokenID
	if dir == TokenToBase {
		assetIn, assetOut = tokenID, l.cfg.BaseAsset
	}

	var transfer *model.Transfer
	if withFee.Sign() > 0 {
		transfer = l.newTransfer(caller, assetOut, tokenID, model.ReasonSwapOut, withFee)
	}
	if err := l.commit(ctx, []*slot{s}, []model.Pair{next}, transfer); err != nil {
		return SwapResult{}, fmt.Errorf("%s %s: %w", op, tokenID, err)
	}

	if l.metrics != nil {
		l.metrics.SwapsTotal.WithLabelValues(tokenID, string(dir)).Inc()
		metrics.Add(l.metrics.SwapVolume.WithLabelValues(tokenID, assetIn), amountIn)
		metrics.Add(l.metrics.FeesEarned.WithLabelValues(tokenID, assetOut), earned)
		l.metrics.Corrections.WithLabelValues(tokenID, kind).Inc()
	}
	l.logger.Debug("swap settled",
		zap.String("token_id", tokenID),
		zap.String("direction", string(dir)),
		zap.String("caller", caller.Hex()),
		zap.Stringer("amount_in", amountIn),
		zap.Stringer("amount_out", withFee),
		zap.Stringer("fee", earned),
		zap.String("correction", kind),
		zap.Stringer("correction_amount", step),
	)

	return SwapResult{
		TokenID:          tokenID,
		AssetIn:          assetIn,
		AmountIn:         new(big.Int).Set(amountIn),
		AssetOut:         assetOut,
		AmountOut:        withFee,
		Fee:              earned,
		Correction:       kind,
		CorrectionAmount: step,
		K:                next.K(),
		InitialK:         new(big.Int).Set(next.InitialK),
	}, nil
}

// correct nudges the live K of p toward its initial K by moving ratio units between the
// output side's liquidity and earnings. Only the output asset is touched.
//
// When K is below the reference and the output earnings cannot cover the full step, the step
// is clamped to the available earnings.
func (l *Ledger) correct(p *model.Pair, dir Direction) (string, *big.Int, error) {
	cmp := p.K().Cmp(p.InitialK)
	if cmp == 0 {
		return CorrectionNone, new(big.Int), nil
	}

	ratio, err := pricing.Ratio(p.TokenLiquidity, p.BaseLiquidity)
	if err != nil {
		if errors.Is(err, pricing.ErrEmptyReserves) {
			return "", nil, ErrInsufficientLiquidity
		}
		return "", nil, err
	}

	_, out, earnings := sides(p, dir)
	if cmp > 0 {
		if out.Cmp(ratio) < 0 {
			return "", nil, ErrInsufficientLiquidity
		}
		out.Sub(out, ratio)
		earnings.Add(earnings, ratio)
		return CorrectionDown, ratio, nil
	}

	kind := CorrectionUp
	step := ratio
	if earnings.Cmp(ratio) < 0 {
		step = new(big.Int).Set(earnings)
		kind = CorrectionUpClamped
		l.logger.Warn("k correction clamped by earnings",
			zap.String("token_id", p.TokenID),
			zap.String("direction", string(dir)),
			zap.Stringer("ratio", ratio),
			zap.Stringer("earnings", earnings),
		)
	}
	out.Add(out, step)
	earnings.Sub(earnings, step)
	return kind, step, nil
}
