package model

import "math/big"

// Payment is the asset and quantity attached to a call. The ledger treats it as already escrowed.
type Payment struct {
	Asset  string
	Amount *big.Int
}

// Transfer is a settlement instruction emitted to the asset transfer sink.
// ID identifies the transfer across settlement retries.
type Transfer struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	TokenID   string `json:"token_id,omitempty"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// Transfer reasons.
const (
	ReasonWithdrawToken = "withdraw_token"
	ReasonWithdrawBase  = "withdraw_base"
	ReasonClaimEarnings = "claim_earnings"
	ReasonSwapOut       = "swap_out"
)
