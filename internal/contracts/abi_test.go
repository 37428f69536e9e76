package contracts

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestAggregateSelector(t *testing.T) {
	parsed, err := MulticallABI()
	if err != nil {
		t.Fatalf("parse multicall abi: %v", err)
	}
	method, ok := parsed.Methods[AggregateMethod]
	if !ok {
		t.Fatalf("missing %s method", AggregateMethod)
	}
	if got := hex.EncodeToString(method.ID); got != "252dba42" {
		t.Fatalf("unexpected selector %s", got)
	}
}

func TestVaultABIsExposeReadMethods(t *testing.T) {
	cases := []struct {
		name    string
		load    func() (abi.ABI, error)
		methods []string
	}{
		{"erc20", ERC20ABI, []string{"totalSupply", "decimals", "symbol"}},
		{"cdo", CDOABI, []string{"getContractValue", "trancheAPRSplitRatio", "FULL_ALLOC", "getApr", "virtualPrice", "lastHarvest", "isEpochRunning", "bufferPeriod", "allowInstantWithdraw", "instantWithdrawDelay"}},
		{"strategy", CreditStrategyABI, []string{"epochEndDate", "epochDuration", "pendingWithdraws", "instantWithdrawDeadline", "withdrawsRequests", "instantWithdrawsRequests"}},
		{"idle token", IdleTokenABI, []string{"getAvgAPR", "tokenPrice", "totalSupply"}},
		{"staking", StakingABI, []string{"rewardRate", "totalSupply", "periodFinish"}},
	}

	for _, tc := range cases {
		parsed, err := tc.load()
		if err != nil {
			t.Fatalf("%s: parse abi: %v", tc.name, err)
		}
		for _, name := range tc.methods {
			if _, ok := parsed.Methods[name]; !ok {
				t.Fatalf("%s: missing method %s", tc.name, name)
			}
		}
	}
}
