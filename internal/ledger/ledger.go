// Package ledger holds the reserve state of every pair and applies deposits, withdrawals,
// swaps and earnings claims to it.
//
// Every operation on a pair runs under that pair's mutex and works on a scratch copy. The copy
// replaces the committed pair only after it has been persisted and any transfer has settled, so
// a failed call leaves balances exactly as they were.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pairdex/internal/metrics"
	"pairdex/internal/model"
	"pairdex/internal/pricing"
)

// DefaultBaseAsset identifies the base currency when none is configured.
const DefaultBaseAsset = "NATIVE"

// Config holds the process-wide ledger settings.
type Config struct {
	Owner     common.Address
	FeeRate   uint32
	BaseAsset string
}

// Ledger is the pair ledger.
type Ledger struct {
	cfg     Config
	store   StateStore
	sink    TransferSink
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	pairs map[string]*slot
}

type slot struct {
	mu   sync.Mutex
	pair model.Pair
}

// Open builds a Ledger and restores pair state from store. A fee rate already persisted in
// store takes precedence over cfg.FeeRate, since the fee is fixed at first construction.
func Open(ctx context.Context, cfg Config, store StateStore, sink TransferSink, m *metrics.Metrics, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address is required")
	}
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = DefaultBaseAsset
	}
	if err := pricing.ValidateFeeRate(cfg.FeeRate); err != nil {
		return nil, fmt.Errorf("fee rate %d: %w", cfg.FeeRate, err)
	}

	l := &Ledger{
		cfg:     cfg,
		store:   store,
		sink:    sink,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		pairs:   make(map[string]*slot),
	}

	if store == nil {
		return l, nil
	}

	stored, ok, err := store.LoadFeeRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fee rate: %w", err)
	}
	if ok {
		if err := pricing.ValidateFeeRate(stored); err != nil {
			return nil, fmt.Errorf("stored fee rate %d: %w", stored, err)
		}
		if stored != cfg.FeeRate {
			logger.Warn("configured fee rate ignored, using stored value",
				zap.Uint32("configured", cfg.FeeRate),
				zap.Uint32("stored", stored),
			)
		}
		l.cfg.FeeRate = stored
	} else if err := store.SaveFeeRate(ctx, cfg.FeeRate); err != nil {
		return nil, fmt.Errorf("save fee rate: %w", err)
	}

	pairs, err := store.LoadPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	for _, p := range pairs {
		if p.TokenID == "" || p.TokenID == l.cfg.BaseAsset {
			return nil, fmt.Errorf("stored pair has invalid token id %q", p.TokenID)
		}
		l.pairs[p.TokenID] = &slot{pair: p.Clone()}
	}

	logger.Info("ledger opened",
		zap.Uint32("fee_rate", l.cfg.FeeRate),
		zap.String("base_asset", l.cfg.BaseAsset),
		zap.String("owner", l.cfg.Owner.Hex()),
		zap.Int("pairs", len(pairs)),
	)
	return l, nil
}

// FeeRate returns the global fee rate in thousandths.
func (l *Ledger) FeeRate() uint32 {
	return l.cfg.FeeRate
}

// BaseAsset returns the identity of the base currency.
func (l *Ledger) BaseAsset() string {
	return l.cfg.BaseAsset
}

// Owner returns the address allowed to call owner-only operations.
func (l *Ledger) Owner() common.Address {
	return l.cfg.Owner
}

func (l *Ledger) authorize(caller common.Address) error {
	if caller != l.cfg.Owner {
		return ErrUnauthorized
	}
	return nil
}

func (l *Ledger) lookup(tokenID string, create bool) *slot {
	l.mu.RLock()
	s := l.pairs[tokenID]
	l.mu.RUnlock()
	if s != nil || !create {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s = l.pairs[tokenID]; s == nil {
		s = &slot{pair: model.NewPair(tokenID)}
		l.pairs[tokenID] = s
	}
	return s
}

// sortedSlots returns every slot ordered by token id, the lock order for multi-pair operations.
func (l *Ledger) sortedSlots() []*slot {
	l.mu.RLock()
	ids := make([]string, 0, len(l.pairs))
	for id := range l.pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	slots := make([]*slot, 0, len(ids))
	for _, id := range ids {
		slots = append(slots, l.pairs[id])
	}
	l.mu.RUnlock()
	return slots
}

// commit persists next over the slots' current pairs, settles transfer if one is given, and only
// then installs next in memory. The slots must be locked by the caller.
func (l *Ledger) commit(ctx context.Context, slots []*slot, next []model.Pair, transfer *model.Transfer) error {
	// Rollback must land even when ctx is what failed the call.
	rollbackCtx := context.WithoutCancel(ctx)
	saved := 0
	for i := range slots {
		if err := l.save(ctx, next[i]); err != nil {
			l.restore(rollbackCtx, slots[:saved])
			return fmt.Errorf("persist pair %s: %w", next[i].TokenID, err)
		}
		saved++
	}

	if transfer != nil && l.sink != nil {
		if err := l.sink.Transfer(ctx, *transfer); err != nil {
			l.logger.Error("settlement failed, rolling back",
				zap.String("recipient", transfer.Recipient),
				zap.String("asset", transfer.Asset),
				zap.String("amount", transfer.Amount),
				zap.Error(err),
			)
			l.restore(rollbackCtx, slots)
			return fmt.Errorf("settle transfer: %w", err)
		}
	}

	for i, s := range slots {
		s.pair = next[i]
	}
	return nil
}

func (l *Ledger) save(ctx context.Context, p model.Pair) error {
	if l.store == nil {
		return nil
	}
	return l.store.SavePair(ctx, p)
}

func (l *Ledger) restore(ctx context.Context, slots []*slot) {
	for _, s := range slots {
		if err := l.save(ctx, s.pair); err != nil {
			l.logger.Error("restore pair after failed commit", zap.String("token_id", s.pair.TokenID), zap.Error(err))
		}
	}
}

func (l *Ledger) newTransfer(recipient common.Address, asset, tokenID, reason string, amount *big.Int) *model.Transfer {
	return &model.Transfer{
		ID:        uuid.New().String(),
		Recipient: recipient.Hex(),
		Asset:     asset,
		Amount:    amount.String(),
		TokenID:   tokenID,
		Reason:    reason,
		CreatedAt: l.now().UTC().Format(time.RFC3339Nano),
	}
}

func (l *Ledger) reject(op string, err error) error {
	if l.metrics != nil {
		l.metrics.Rejections.WithLabelValues(op, Kind(err)).Inc()
	}
	return err
}

// settle clears initial K whenever a pair is back in Funding so the next funding
// transition freezes a fresh reference.
func settle(p *model.Pair) {
	if p.Status() == model.StatusFunding && p.InitialK.Sign() != 0 {
		p.InitialK = new(big.Int)
	}
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}
