package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// EpochConfig holds configuration for the epoch command.
type EpochConfig struct {
	Config
	User string
	At   uint64

	// Optional position, reported as a realized APY when Deposited is set.
	Deposited string
	Current   string
	Since     uint64
}

// LoadEpoch merges config file, environment variables, and flags into EpochConfig.
func LoadEpoch(cfgFile string, flags *pflag.FlagSet) (EpochConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return EpochConfig{}, err
	}
	base, err := fromViper(v)
	if err != nil {
		return EpochConfig{}, err
	}
	at, err := ParseTimestamp(v.GetString("at"))
	if err != nil {
		return EpochConfig{}, err
	}
	since, err := ParseTimestamp(v.GetString("since"))
	if err != nil {
		return EpochConfig{}, err
	}
	return EpochConfig{
		Config:    base,
		User:      strings.TrimSpace(v.GetString("user")),
		At:        at,
		Deposited: strings.TrimSpace(v.GetString("deposited")),
		Current:   strings.TrimSpace(v.GetString("current")),
		Since:     since,
	}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
