package config

import (
	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for offline price quotes.
type QuoteConfig struct {
	TokenLiquidity string
	BaseLiquidity  string
	FeeRate        uint32
	Qty            string
	Direction      string
	LogLevel       string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v := newViper()
	v.SetDefault("fee-rate", 3)
	v.SetDefault("direction", "base-to-token")
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		TokenLiquidity: v.GetString("token-liquidity"),
		BaseLiquidity:  v.GetString("base-liquidity"),
		FeeRate:        v.GetUint32("fee-rate"),
		Qty:            v.GetString("qty"),
		Direction:      v.GetString("direction"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
