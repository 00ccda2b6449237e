package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeConfig holds configuration for the HTTP ledger service.
type ServeConfig struct {
	Listen        string
	Owner         string
	FeeRate       uint32
	BaseAsset     string
	Store         string
	StateFile     string
	PGDSN         string
	BadgerDir     string
	TransfersOut  string
	SettleRetries int
	SettleBackoff time.Duration
	LogLevel      string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v := newViper()
	v.SetDefault("listen", ":8080")
	v.SetDefault("fee-rate", 3)
	v.SetDefault("base-asset", "NATIVE")
	v.SetDefault("store", "memory")
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("badger-dir", "./data/badger")
	v.SetDefault("transfers-out", "./data/transfers.jsonl")
	v.SetDefault("settle-retries", 3)
	v.SetDefault("settle-backoff", 200*time.Millisecond)
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:        v.GetString("listen"),
		Owner:         v.GetString("owner"),
		FeeRate:       v.GetUint32("fee-rate"),
		BaseAsset:     v.GetString("base-asset"),
		Store:         strings.ToLower(v.GetString("store")),
		StateFile:     v.GetString("state-file"),
		PGDSN:         v.GetString("pg-dsn"),
		BadgerDir:     v.GetString("badger-dir"),
		TransfersOut:  v.GetString("transfers-out"),
		SettleRetries: v.GetInt("settle-retries"),
		SettleBackoff: v.GetDuration("settle-backoff"),
		LogLevel:      v.GetString("log-level"),
	}
	return cfg, nil
}

// OwnerAddress validates and parses the configured owner.
func (c ServeConfig) OwnerAddress() (common.Address, error) {
	return ParseAddress(c.Owner)
}

// ParseAddress parses a hex account address.
func ParseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, fmt.Errorf("address is required")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address: %s", value)
	}
	return common.HexToAddress(value), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PAIRDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
