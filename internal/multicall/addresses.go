package multicall

import "github.com/ethereum/go-ethereum/common"

// Aggregator contract deployments by chain id.
var defaultAddresses = map[uint64]common.Address{
	1:   common.HexToAddress("0xeefBa1e63905eF1D7ACbA5a8513c70307C1cE441"),
	137: common.HexToAddress("0x11ce4B23bD875D7F5C6a31084f55fDe1e9A87507"),
}

// AddressFor returns the default aggregator deployment for a chain.
func AddressFor(chainID uint64) (common.Address, bool) {
	addr, ok := defaultAddresses[chainID]
	return addr, ok
}
