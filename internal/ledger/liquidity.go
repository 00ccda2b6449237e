package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pairdex/internal/metrics"
	"pairdex/internal/model"
)

// DepositToken adds the attached token payment to the liquidity of the pair it identifies.
// The pair is created on first deposit.
func (l *Ledger) DepositToken(ctx context.Context, caller common.Address, payment model.Payment) error {
	const op = "deposit_token"
	if err := l.authorize(caller); err != nil {
		return l.reject(op, err)
	}
	if payment.Asset == "" || payment.Asset == l.cfg.BaseAsset {
		return l.reject(op, fmt.Errorf("%s: %w: got %q, want a token", op, ErrAssetMismatch, payment.Asset))
	}
	if err := validAmount(payment.Amount); err != nil {
		return l.reject(op, err)
	}
	return l.deposit(ctx, op, payment.Asset, payment.Asset, payment.Amount)
}

// DepositBase adds the attached base-currency payment to the base liquidity of tokenID.
func (l *Ledger) DepositBase(ctx context.Context, caller common.Address, tokenID string, payment model.Payment) error {
	const op = "deposit_base"
	if err := l.authorize(caller); err != nil {
		return l.reject(op, err)
	}
	if tokenID == "" || tokenID == l.cfg.BaseAsset {
		return l.reject(op, fmt.Errorf("%s: %w: invalid token id %q", op, ErrAssetMismatch, tokenID))
	}
	if payment.Asset != l.cfg.BaseAsset {
		return l.reject(op, fmt.Errorf("%s: %w: got %q, want %q", op, ErrAssetMismatch, payment.Asset, l.cfg.BaseAsset))
	}
	if err := validAmount(payment.Amount); err != nil {
		return l.reject(op, err)
	}
	return l.deposit(ctx, op, tokenID, l.cfg.BaseAsset, payment.Amount)
}

func (l *Ledger) deposit(ctx context.Context, op, tokenID, asset string, amount *big.Int) error {
	s := l.lookup(tokenID, amount.Sign() != 0)
	if s == nil {
		// Zero deposit for a pair that does not exist yet.
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pair.Status() != model.StatusFunding {
		return l.reject(op, fmt.Errorf("%s %s: %w", op, tokenID, ErrPairAlreadyFunded))
	}

	next := s.pair.Clone()
	if asset == l.cfg.BaseAsset {
		next.BaseLiquidity.Add(next.BaseLiquidity, amount)
	} else {
		next.TokenLiquidity.Add(next.TokenLiquidity, amount)
	}

	funded := next.Status() == model.StatusSuccessful
	if funded {
		next.InitialK = next.K()
	}

	if err := l.commit(ctx, []*slot{s}, []model.Pair{next}, nil); err != nil {
		return fmt.Errorf("%s %s: %w", op, tokenID, err)
	}

	if l.metrics != nil {
		metrics.Add(l.metrics.LiquidityDeposits.WithLabelValues(tokenID, asset), amount)
	}
	l.logger.Info("liquidity deposited",
		zap.String("token_id", tokenID),
		zap.String("asset", asset),
		zap.Stringer("amount", amount),
	)
	if funded {
		if l.metrics != nil {
			l.metrics.PairsFunded.Inc()
		}
		l.logger.Info("pair funded",
			zap.String("token_id", tokenID),
			zap.Stringer("initial_k", next.InitialK),
		)
	}
	return nil
}

// WithdrawToken pays the whole token liquidity of tokenID to the owner and zeroes it.
// A zero balance is not an error; the returned amount is then zero.
func (l *Ledger) WithdrawToken(ctx context.Context, caller common.Address, tokenID string) (*big.Int, error) {
	return l.withdraw(ctx, "withdraw_token", caller, tokenID, false)
}

// WithdrawBase pays the whole base liquidity of tokenID to the owner and zeroes it.
func (l *Ledger) WithdrawBase(ctx context.Context, caller common.Address, tokenID string) (*big.Int, error) {
	return l.withdraw(ctx, "withdraw_base", caller, tokenID, true)
}

func (l *Ledger) withdraw(ctx context.Context, op string, caller common.Address, tokenID string, base bool) (*big.Int, error) {
	if err := l.authorize(caller); err != nil {
		return nil, l.reject(op, err)
	}
	s := l.lookup(tokenID, false)
	if s == nil {
		return new(big.Int), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.pair.Clone()
	var amount *big.Int
	asset, reason := tokenID, model.ReasonWithdrawToken
	if base {
		amount = next.BaseLiquidity
		next.BaseLiquidity = new(big.Int)
		asset, reason = l.cfg.BaseAsset, model.ReasonWithdrawBase
	} else {
		amount = next.TokenLiquidity
		next.TokenLiquidity = new(big.Int)
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	settle(&next)

	transfer := l.newTransfer(l.cfg.Owner, asset, tokenID, reason, amount)
	if err := l.commit(ctx, []*slot{s}, []model.Pair{next}, transfer); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, tokenID, err)
	}

	if l.metrics != nil {
		metrics.Add(l.metrics.Claims.WithLabelValues(asset, reason), amount)
	}
	l.logger.Info("liquidity withdrawn",
		zap.String("token_id", tokenID),
		zap.String("asset", asset),
		zap.Stringer("amount", amount),
		zap.String("status", string(next.Status())),
	)
	return new(big.Int).Set(amount), nil
}
