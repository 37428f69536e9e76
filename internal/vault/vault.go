// Package vault resolves the yield of the supported vault kinds and the
// withdrawal state of credit vaults.
package vault

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vaultScope/internal/config"
	"vaultScope/internal/platform"
)

// Kind names a vault variant.
type Kind string

const (
	KindTranche   Kind = "tranche"
	KindCredit    Kind = "credit"
	KindBestYield Kind = "best-yield"
	KindStaked    Kind = "staked"
)

// Vault is one of *Tranche, *Credit, *BestYield or *Staked.
type Vault interface {
	Name() string
	Kind() Kind
	// Address is the contract users deposit into.
	Address() common.Address
	isVault()
}

// Tranche is one side of a tranched CDO.
type Tranche struct {
	Label      string
	CDO        common.Address
	Tranche    common.Address
	Underlying common.Address
	Decimals   uint8
	Senior     bool
	// BaseRate is the off-chain rate of the underlying strategy, if any.
	BaseRate *platform.RateSource
	// TrackHarvest enables the harvest component.
	TrackHarvest bool
}

func (t *Tranche) Name() string            { return t.Label }
func (t *Tranche) Kind() Kind              { return KindTranche }
func (t *Tranche) Address() common.Address { return t.Tranche }
func (t *Tranche) isVault()                {}

// Credit is a tranche whose strategy runs in epochs with queued withdrawals.
type Credit struct {
	Tranche
	Strategy common.Address
}

func (c *Credit) Kind() Kind { return KindCredit }

// BestYield is a token that rebalances across lending protocols.
type BestYield struct {
	Label    string
	Token    common.Address
	Decimals uint8
}

func (b *BestYield) Name() string            { return b.Label }
func (b *BestYield) Kind() Kind              { return KindBestYield }
func (b *BestYield) Address() common.Address { return b.Token }
func (b *BestYield) isVault()                {}

// Staked is a staking rewards contract.
type Staked struct {
	Label      string
	Staking    common.Address
	StakeToken common.Address
	Decimals   uint8
}

func (s *Staked) Name() string            { return s.Label }
func (s *Staked) Kind() Kind              { return KindStaked }
func (s *Staked) Address() common.Address { return s.Staking }
func (s *Staked) isVault()                {}

// FromConfig builds a vault from its configuration entry.
func FromConfig(cfg config.VaultConfig) (Vault, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("vault name is required")
	}
	decimals := cfg.Decimals
	if decimals == 0 {
		decimals = 18
	}

	switch Kind(strings.ToLower(strings.TrimSpace(cfg.Kind))) {
	case KindTranche:
		t, err := trancheFromConfig(name, decimals, cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	case KindCredit:
		t, err := trancheFromConfig(name, decimals, cfg)
		if err != nil {
			return nil, err
		}
		strategy, err := parseAddress(name, "strategy", cfg.Strategy)
		if err != nil {
			return nil, err
		}
		return &Credit{Tranche: *t, Strategy: strategy}, nil
	case KindBestYield:
		token, err := parseAddress(name, "token", cfg.Token)
		if err != nil {
			return nil, err
		}
		return &BestYield{Label: name, Token: token, Decimals: decimals}, nil
	case KindStaked:
		staking, err := parseAddress(name, "staking", cfg.Staking)
		if err != nil {
			return nil, err
		}
		stakeToken, err := parseAddress(name, "stake-token", cfg.StakeToken)
		if err != nil {
			return nil, err
		}
		return &Staked{Label: name, Staking: staking, StakeToken: stakeToken, Decimals: decimals}, nil
	default:
		return nil, fmt.Errorf("vault %s: unknown kind %q", name, cfg.Kind)
	}
}

// FromConfigs builds every configured vault.
func FromConfigs(cfgs []config.VaultConfig) ([]Vault, error) {
	vaults := make([]Vault, 0, len(cfgs))
	for _, cfg := range cfgs {
		v, err := FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}

func trancheFromConfig(name string, decimals uint8, cfg config.VaultConfig) (*Tranche, error) {
	cdo, err := parseAddress(name, "cdo", cfg.CDO)
	if err != nil {
		return nil, err
	}
	tranche, err := parseAddress(name, "tranche", cfg.Tranche)
	if err != nil {
		return nil, err
	}
	underlying, err := parseAddress(name, "underlying", cfg.Underlying)
	if err != nil {
		return nil, err
	}

	t := &Tranche{
		Label:        name,
		CDO:          cdo,
		Tranche:      tranche,
		Underlying:   underlying,
		Decimals:     decimals,
		Senior:       cfg.Senior,
		TrackHarvest: cfg.TrackHarvest,
	}
	if cfg.Rate != nil && cfg.Rate.URL != "" {
		t.BaseRate = &platform.RateSource{
			URL:     cfg.Rate.URL,
			Method:  cfg.Rate.Method,
			Body:    cfg.Rate.Body,
			Path:    cfg.Rate.Path,
			Divisor: decimal.NewFromFloat(cfg.Rate.Divisor),
		}
	}
	return t, nil
}

func parseAddress(vault, field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("vault %s: invalid %s address %q", vault, field, value)
	}
	addr := common.HexToAddress(value)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("vault %s: %s address is zero", vault, field)
	}
	return addr, nil
}
