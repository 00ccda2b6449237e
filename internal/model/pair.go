package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Status is the lifecycle state of a pair. It is derived from balances, never stored.
type Status string

const (
	StatusFunding    Status = "Funding"
	StatusSuccessful Status = "Successful"
)

// Pair is the reserve state for one token traded against the base asset.
type Pair struct {
	TokenID        string
	TokenLiquidity *big.Int
	BaseLiquidity  *big.Int
	InitialK       *big.Int
	TokenEarnings  *big.Int
	BaseEarnings   *big.Int
}

// NewPair returns an empty pair in Funding status.
func NewPair(tokenID string) Pair {
	return Pair{
		TokenID:        tokenID,
		TokenLiquidity: new(big.Int),
		BaseLiquidity:  new(big.Int),
		InitialK:       new(big.Int),
		TokenEarnings:  new(big.Int),
		BaseEarnings:   new(big.Int),
	}
}

// Clone returns a deep copy so callers can mutate balances without aliasing.
func (p Pair) Clone() Pair {
	return Pair{
		TokenID:        p.TokenID,
		TokenLiquidity: cloneInt(p.TokenLiquidity),
		BaseLiquidity:  cloneInt(p.BaseLiquidity),
		InitialK:       cloneInt(p.InitialK),
		TokenEarnings:  cloneInt(p.TokenEarnings),
		BaseEarnings:   cloneInt(p.BaseEarnings),
	}
}

// Status reports Successful iff both liquidity balances are positive.
func (p Pair) Status() Status {
	if p.TokenLiquidity != nil && p.TokenLiquidity.Sign() > 0 &&
		p.BaseLiquidity != nil && p.BaseLiquidity.Sign() > 0 {
		return StatusSuccessful
	}
	return StatusFunding
}

// K returns the live product token_liquidity * base_liquidity.
func (p Pair) K() *big.Int {
	return new(big.Int).Mul(cloneInt(p.TokenLiquidity), cloneInt(p.BaseLiquidity))
}

// IsEmpty reports whether every stored quantity is zero.
func (p Pair) IsEmpty() bool {
	for _, v := range []*big.Int{p.TokenLiquidity, p.BaseLiquidity, p.InitialK, p.TokenEarnings, p.BaseEarnings} {
		if v != nil && v.Sign() != 0 {
			return false
		}
	}
	return true
}

type pairJSON struct {
	TokenID        string `json:"token_id"`
	TokenLiquidity string `json:"token_liquidity"`
	BaseLiquidity  string `json:"base_liquidity"`
	InitialK       string `json:"initial_k"`
	TokenEarnings  string `json:"token_earnings"`
	BaseEarnings   string `json:"base_earnings"`
}

// MarshalJSON encodes amounts as base-10 strings.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal(pairJSON{
		TokenID:        p.TokenID,
		TokenLiquidity: cloneInt(p.TokenLiquidity).String(),
		BaseLiquidity:  cloneInt(p.BaseLiquidity).String(),
		InitialK:       cloneInt(p.InitialK).String(),
		TokenEarnings:  cloneInt(p.TokenEarnings).String(),
		BaseEarnings:   cloneInt(p.BaseEarnings).String(),
	})
}

// UnmarshalJSON decodes a Pair and rejects negative or malformed amounts.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw pairJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := Pair{TokenID: raw.TokenID}
	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"token_liquidity", raw.TokenLiquidity, &decoded.TokenLiquidity},
		{"base_liquidity", raw.BaseLiquidity, &decoded.BaseLiquidity},
		{"initial_k", raw.InitialK, &decoded.InitialK},
		{"token_earnings", raw.TokenEarnings, &decoded.TokenEarnings},
		{"base_earnings", raw.BaseEarnings, &decoded.BaseEarnings},
	}
	for _, f := range fields {
		v, err := ParseAmount(f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	*p = decoded
	return nil
}

// ParseAmount parses a non-negative base-10 integer. Empty input is zero.
func ParseAmount(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
