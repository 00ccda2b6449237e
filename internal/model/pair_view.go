package model

// PairView is the read-only JSON projection of a pair served to external callers.
type PairView struct {
	TokenID        string `json:"token_id"`
	Status         Status `json:"status"`
	TokenLiquidity string `json:"token_liquidity"`
	BaseLiquidity  string `json:"base_liquidity"`
	InitialK       string `json:"initial_k"`
	K              string `json:"k"`
	TokenEarnings  string `json:"token_earnings"`
	BaseEarnings   string `json:"base_earnings"`
}

// View builds the JSON projection of p.
func (p Pair) View() PairView {
	return PairView{
		TokenID:        p.TokenID,
		Status:         p.Status(),
		TokenLiquidity: cloneInt(p.TokenLiquidity).String(),
		BaseLiquidity:  cloneInt(p.BaseLiquidity).String(),
		InitialK:       cloneInt(p.InitialK).String(),
		K:              p.K().String(),
		TokenEarnings:  cloneInt(p.TokenEarnings).String(),
		BaseEarnings:   cloneInt(p.BaseEarnings).String(),
	}
}
