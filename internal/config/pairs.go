package config

import (
	"strings"

	"github.com/spf13/pflag"
)

// PairsConfig holds configuration for inspecting stored pairs.
type PairsConfig struct {
	Store     string
	StateFile string
	PGDSN     string
	BadgerDir string
	LogLevel  string
}

// LoadPairs merges config file, environment variables, and flags into PairsConfig.
func LoadPairs(cfgFile string, flags *pflag.FlagSet) (PairsConfig, error) {
	v := newViper()
	v.SetDefault("store", "file")
	v.SetDefault("state-file", "./data/state.json")
	v.SetDefault("badger-dir", "./data/badger")
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return PairsConfig{}, err
	}

	return PairsConfig{
		Store:     strings.ToLower(v.GetString("store")),
		StateFile: v.GetString("state-file"),
		PGDSN:     v.GetString("pg-dsn"),
		BadgerDir: v.GetString("badger-dir"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}
