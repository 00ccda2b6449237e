package ledger

import "errors"

var (
	ErrUnauthorized          = errors.New("caller is not the owner")
	ErrPairAlreadyFunded     = errors.New("pair already funded")
	ErrPairStillFunding      = errors.New("pair still funding")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrAssetMismatch         = errors.New("payment asset does not match operation")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnknownPair           = errors.New("unknown pair")
)

// Kind returns a stable name for the error kind of err, or "internal" for anything else.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPairAlreadyFunded):
		return "pair_already_funded"
	case errors.Is(err, ErrPairStillFunding):
		return "pair_still_funding"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrAssetMismatch):
		return "asset_mismatch"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrUnknownPair):
		return "unknown_pair"
	default:
		return "internal"
	}
}
