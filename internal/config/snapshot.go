package config

import (
	"time"

	"github.com/spf13/pflag"
)

// SnapshotConfig holds configuration for the snapshot poller.
type SnapshotConfig struct {
	Config
	Out          string
	Checkpoint   string
	PGDSN        string
	Interval     time.Duration
	Iterations   int
	MetricsAddr  string
	MaxRetries   int
	RetryBackoff time.Duration
}

// LoadSnapshot merges config file, environment variables, and flags into SnapshotConfig.
func LoadSnapshot(cfgFile string, flags *pflag.FlagSet) (SnapshotConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return SnapshotConfig{}, err
	}
	v.SetDefault("out", "./data/snapshots.jsonl")
	v.SetDefault("checkpoint", "./data/snapshot_checkpoint.json")
	v.SetDefault("interval", 10*time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)

	base, err := fromViper(v)
	if err != nil {
		return SnapshotConfig{}, err
	}

	return SnapshotConfig{
		Config:       base,
		Out:          v.GetString("out"),
		Checkpoint:   v.GetString("checkpoint"),
		PGDSN:        v.GetString("pg-dsn"),
		Interval:     v.GetDuration("interval"),
		Iterations:   v.GetInt("iterations"),
		MetricsAddr:  v.GetString("metrics-addr"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}, nil
}
