package ledger

import (
	"context"

	"pairdex/internal/model"
)

// StateStore persists pair state and the global fee rate.
type StateStore interface {
	LoadPairs(ctx context.Context) ([]model.Pair, error)
	SavePair(ctx context.Context, pair model.Pair) error
	LoadFeeRate(ctx context.Context) (uint32, bool, error)
	SaveFeeRate(ctx context.Context, feeRate uint32) error
}

// TransferSink performs the balance-changing transfer for a settlement instruction.
type TransferSink interface {
	Transfer(ctx context.Context, transfer model.Transfer) error
}
