package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RateConfig locates an external base rate served by a platform API.
type RateConfig struct {
	URL     string  `mapstructure:"url"`
	Method  string  `mapstructure:"method"`
	Body    string  `mapstructure:"body"`
	Path    string  `mapstructure:"path"`
	Divisor float64 `mapstructure:"divisor"`
}

// VaultConfig describes one vault. Which fields are required depends on Kind.
type VaultConfig struct {
	Name         string      `mapstructure:"name"`
	Kind         string      `mapstructure:"kind"`
	CDO          string      `mapstructure:"cdo"`
	Tranche      string      `mapstructure:"tranche"`
	Underlying   string      `mapstructure:"underlying"`
	Decimals     uint8       `mapstructure:"decimals"`
	Senior       bool        `mapstructure:"senior"`
	TrackHarvest bool        `mapstructure:"track-harvest"`
	Strategy     string      `mapstructure:"strategy"`
	Token        string      `mapstructure:"token"`
	Staking      string      `mapstructure:"staking"`
	StakeToken   string      `mapstructure:"stake-token"`
	Rate         *RateConfig `mapstructure:"rate"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL              string
	ChainID             uint64
	MulticallAddresses  map[uint64]string
	FallbackConcurrency int
	ExplorerURL         string
	ExplorerKeys        []string
	PlatformCacheTTL    time.Duration
	MaxHarvestAge       time.Duration
	Vaults              []VaultConfig
	LogLevel            string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v)
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("fallback-concurrency", 0)
	v.SetDefault("explorer-url", "https://api.etherscan.io/api")
	v.SetDefault("platform-cache-ttl", 5*time.Minute)
	v.SetDefault("max-harvest-age", 14*24*time.Hour)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	var vaults []VaultConfig
	if v.IsSet("vaults") {
		if err := v.UnmarshalKey("vaults", &vaults); err != nil {
			return Config{}, fmt.Errorf("decode vaults: %w", err)
		}
	}

	addresses, err := parseChainMap(getStringMap(v, "multicall-addresses"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		RPCURL:              v.GetString("rpc"),
		ChainID:             v.GetUint64("chain-id"),
		MulticallAddresses:  addresses,
		FallbackConcurrency: v.GetInt("fallback-concurrency"),
		ExplorerURL:         v.GetString("explorer-url"),
		ExplorerKeys:        getStringSlice(v, "explorer-keys"),
		PlatformCacheTTL:    v.GetDuration("platform-cache-ttl"),
		MaxHarvestAge:       v.GetDuration("max-harvest-age"),
		Vaults:              vaults,
		LogLevel:            v.GetString("log-level"),
	}, nil
}

func parseChainMap(raw map[string]string) (map[uint64]string, error) {
	out := make(map[uint64]string, len(raw))
	for key, value := range raw {
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", key, err)
		}
		out[id] = value
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
