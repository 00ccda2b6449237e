package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"pairdex/internal/model"
	"pairdex/internal/pricing"
)

// Status reports the derived status of tokenID. Unknown pairs are Funding.
func (l *Ledger) Status(tokenID string) model.Status {
	p, ok := l.snapshot(tokenID)
	if !ok {
		return model.StatusFunding
	}
	return p.Status()
}

// Pair returns a copy of the state of tokenID.
func (l *Ledger) Pair(tokenID string) (model.Pair, error) {
	p, ok := l.snapshot(tokenID)
	if !ok || p.IsEmpty() {
		return model.Pair{}, fmt.Errorf("pair %s: %w", tokenID, ErrUnknownPair)
	}
	return p, nil
}

// Pairs returns copies of every non-empty pair ordered by token id.
func (l *Ledger) Pairs() []model.Pair {
	slots := l.sortedSlots()
	out := make([]model.Pair, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		p := s.pair.Clone()
		s.mu.Unlock()
		if !p.IsEmpty() {
			out = append(out, p)
		}
	}
	return out
}

// Earnings returns the claimable earnings of assetID without claiming them.
func (l *Ledger) Earnings(assetID string) *big.Int {
	if assetID == l.cfg.BaseAsset {
		total := new(big.Int)
		for _, p := range l.Pairs() {
			total.Add(total, p.BaseEarnings)
		}
		return total
	}
	p, ok := l.snapshot(assetID)
	if !ok {
		return new(big.Int)
	}
	return p.TokenEarnings
}

// CalculateK returns the live product of the two liquidity balances of tokenID.
func (l *Ledger) CalculateK(tokenID string) *big.Int {
	p, ok := l.snapshot(tokenID)
	if !ok {
		return new(big.Int)
	}
	return p.K()
}

// Ratio returns the correction step size for tokenID.
func (l *Ledger) Ratio(tokenID string) (*big.Int, error) {
	p, ok := l.snapshot(tokenID)
	if !ok {
		return nil, fmt.Errorf("ratio %s: %w", tokenID, ErrPairStillFunding)
	}
	r, err := pricing.Ratio(p.TokenLiquidity, p.BaseLiquidity)
	if err != nil {
		return nil, fmt.Errorf("ratio %s: %w", tokenID, queryErr(err))
	}
	return r, nil
}

// PriceBaseToToken quotes the tokens paid for qty base, fee applied.
func (l *Ledger) PriceBaseToToken(tokenID string, qty *big.Int) (*big.Int, error) {
	return l.quote(tokenID, BaseToToken, qty, l.cfg.FeeRate)
}

// PriceBaseToTokenNoFee quotes the tokens paid for qty base with no fee.
func (l *Ledger) PriceBaseToTokenNoFee(tokenID string, qty *big.Int) (*big.Int, error) {
	return l.quote(tokenID, BaseToToken, qty, 0)
}

// FeeBaseToToken is the fee, in tokens, withheld when selling qty base.
func (l *Ledger) FeeBaseToToken(tokenID string, qty *big.Int) (*big.Int, error) {
	return l.fee(tokenID, BaseToToken, qty)
}

// PriceTokenToBase quotes the base paid for qty tokens, fee applied.
func (l *Ledger) PriceTokenToBase(tokenID string, qty *big.Int) (*big.Int, error) {
	return l.quote(tokenID, TokenToBase, qty, l.cfg.FeeRate)
}

// PriceTokenToBaseNoFee quotes the base paid for qty tokens with no fee.
func (l *Ledger) PriceTokenToBaseNoFee(tokenID string, qty *big.Int) (*big.Int, error) {
	return l.quote(tokenID, TokenToBase, qty, 0)
}

// FeeTokenToBase is the fee, in base, withheld when selling qty tokens.
func (l *Ledger) FeeTokenToBase(tokenID string, qty *big.Int) (*big.Int, error) {
	return l.fee(tokenID, TokenToBase, qty)
}

// PriceTokenToBaseNumerator is base_liquidity * qty * (1000 - fee).
func (l *Ledger) PriceTokenToBaseNumerator(tokenID string, qty *big.Int) (*big.Int, error) {
	if err := validQty(qty); err != nil {
		return nil, err
	}
	p, _ := l.snapshot(tokenID)
	n, err := pricing.Numerator(p.BaseLiquidity, qty, l.cfg.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("numerator %s: %w", tokenID, queryErr(err))
	}
	return n, nil
}

// PriceTokenToBaseDenominator is token_liquidity * 1000 + qty * (1000 - fee).
func (l *Ledger) PriceTokenToBaseDenominator(tokenID string, qty *big.Int) (*big.Int, error) {
	if err := validQty(qty); err != nil {
		return nil, err
	}
	p, _ := l.snapshot(tokenID)
	d, err := pricing.Denominator(p.TokenLiquidity, qty, l.cfg.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("denominator %s: %w", tokenID, queryErr(err))
	}
	return d, nil
}

// Quote dispatches to the price function for dir.
func (l *Ledger) Quote(tokenID string, dir Direction, qty *big.Int, withFee bool) (*big.Int, error) {
	fee := l.cfg.FeeRate
	if !withFee {
		fee = 0
	}
	return l.quote(tokenID, dir, qty, fee)
}

// Fee dispatches to the fee function for dir.
func (l *Ledger) Fee(tokenID string, dir Direction, qty *big.Int) (*big.Int, error) {
	return l.fee(tokenID, dir, qty)
}

func (l *Ledger) quote(tokenID string, dir Direction, qty *big.Int, feeRate uint32) (*big.Int, error) {
	if err := validQty(qty); err != nil {
		return nil, err
	}
	p, _ := l.snapshot(tokenID)
	in, out, _ := sides(&p, dir)
	v, err := pricing.AmountOut(in, out, qty, feeRate)
	if err != nil {
		return nil, fmt.Errorf("price %s %s: %w", dir, tokenID, queryErr(err))
	}
	return v, nil
}

func (l *Ledger) fee(tokenID string, dir Direction, qty *big.Int) (*big.Int, error) {
	if err := validQty(qty); err != nil {
		return nil, err
	}
	p, _ := l.snapshot(tokenID)
	in, out, _ := sides(&p, dir)
	v, err := pricing.Fee(in, out, qty, l.cfg.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("fee %s %s: %w", dir, tokenID, queryErr(err))
	}
	return v, nil
}

// snapshot returns a copy of tokenID's pair; unknown pairs yield an empty pair and false.
func (l *Ledger) snapshot(tokenID string) (model.Pair, bool) {
	s := l.lookup(tokenID, false)
	if s == nil {
		return model.NewPair(tokenID), false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair.Clone(), true
}

func validQty(qty *big.Int) error {
	if qty == nil || qty.Sign() < 0 {
		return fmt.Errorf("%w: quantity must be non-negative", ErrInvalidAmount)
	}
	return nil
}

func queryErr(err error) error {
	if errors.Is(err, pricing.ErrEmptyReserves) {
		return ErrPairStillFunding
	}
	return err
}
