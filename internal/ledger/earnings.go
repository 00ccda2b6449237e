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

// ClaimEarnings pays the accrued fee earnings of assetID to the owner and zeroes them.
// For a token id this is the pair's token earnings; for the base asset it is the base
// earnings of every pair, swept into a single transfer. Claiming nothing returns zero.
func (l *Ledger) ClaimEarnings(ctx context.Context, caller common.Address, assetID string) (*big.Int, error) {
	const op = "claim_earnings"
	if err := l.authorize(caller); err != nil {
		return nil, l.reject(op, err)
	}
	if assetID == "" {
		return nil, l.reject(op, fmt.Errorf("%s: %w: empty asset id", op, ErrAssetMismatch))
	}

	var slots []*slot
	if assetID == l.cfg.BaseAsset {
		slots = l.sortedSlots()
	} else if s := l.lookup(assetID, false); s != nil {
		slots = []*slot{s}
	}
	for _, s := range slots {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	total := new(big.Int)
	touched := make([]*slot, 0, len(slots))
	next := make([]model.Pair, 0, len(slots))
	for _, s := range slots {
		p := s.pair.Clone()
		earned := p.TokenEarnings
		if assetID == l.cfg.BaseAsset {
			earned = p.BaseEarnings
		}
		if earned.Sign() == 0 {
			continue
		}
		total.Add(total, earned)
		earned.SetInt64(0)
		touched = append(touched, s)
		next = append(next, p)
	}
	if total.Sign() == 0 {
		return total, nil
	}

	tokenID := assetID
	if assetID == l.cfg.BaseAsset {
		tokenID = ""
	}
	transfer := l.newTransfer(l.cfg.Owner, assetID, tokenID, model.ReasonClaimEarnings, total)
	if err := l.commit(ctx, touched, next, transfer); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, assetID, err)
	}

	if l.metrics != nil {
		metrics.Add(l.metrics.Claims.WithLabelValues(assetID, model.ReasonClaimEarnings), total)
	}
	l.logger.Info("earnings claimed",
		zap.String("asset", assetID),
		zap.Stringer("amount", total),
		zap.Int("pairs", len(touched)),
	)
	return total, nil
}
