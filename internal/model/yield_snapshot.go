package model

import "time"

// YieldSnapshot is one resolved yield reading of a vault. Rates are decimal
// fractions rendered as strings.
type YieldSnapshot struct {
	ChainID      uint64    `json:"chainId"`
	VaultName    string    `json:"vaultName"`
	VaultKind    string    `json:"vaultKind"`
	VaultAddress string    `json:"vaultAddress"`
	BaseAPR      string    `json:"baseApr"`
	RateAPR      string    `json:"rateApr"`
	HarvestAPR   string    `json:"harvestApr"`
	RewardAPR    string    `json:"rewardApr"`
	TotalAPR     string    `json:"totalApr"`
	APY          string    `json:"apy"`
	PoolSize     string    `json:"poolSize"`
	CollectedAt  time.Time `json:"collectedAt"`
}
