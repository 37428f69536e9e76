package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// parsedABI lazily parses an ABI JSON document once.
type parsedABI struct {
	json string
	once sync.Once
	abi  abi.ABI
	err  error
}

func (p *parsedABI) get() (abi.ABI, error) {
	p.once.Do(func() {
		p.abi, p.err = abi.JSON(strings.NewReader(p.json))
	})
	return p.abi, p.err
}

var (
	erc20ABI     = &parsedABI{json: erc20ABIJSON}
	multicallABI = &parsedABI{json: multicallABIJSON}
	cdoABI       = &parsedABI{json: cdoABIJSON}
	strategyABI  = &parsedABI{json: creditStrategyABIJSON}
	idleTokenABI = &parsedABI{json: idleTokenABIJSON}
	stakingABI   = &parsedABI{json: stakingABIJSON}
)

// ERC20ABI returns the parsed ERC20 read ABI.
func ERC20ABI() (abi.ABI, error) { return erc20ABI.get() }

// MulticallABI returns the parsed aggregator ABI.
func MulticallABI() (abi.ABI, error) { return multicallABI.get() }

// CDOABI returns the parsed tranche CDO ABI, including the epoch getters of credit vaults.
func CDOABI() (abi.ABI, error) { return cdoABI.get() }

// CreditStrategyABI returns the parsed credit vault strategy ABI.
func CreditStrategyABI() (abi.ABI, error) { return strategyABI.get() }

// IdleTokenABI returns the parsed best-yield token ABI.
func IdleTokenABI() (abi.ABI, error) { return idleTokenABI.get() }

// StakingABI returns the parsed staking rewards ABI.
func StakingABI() (abi.ABI, error) { return stakingABI.get() }
