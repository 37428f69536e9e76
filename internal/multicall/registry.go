package multicall

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MethodKey identifies a contract method by its declared name and input arity.
type MethodKey struct {
	Name  string
	Arity int
}

// Registry resolves ABI methods by (name, arity). Overloaded methods, which
// go-ethereum renames to foo0, foo1, ..., are indexed under their raw name.
type Registry struct {
	abi     abi.ABI
	methods map[MethodKey]abi.Method
}

// NewRegistry indexes every method of the parsed ABI.
func NewRegistry(parsed abi.ABI) *Registry {
	methods := make(map[MethodKey]abi.Method, len(parsed.Methods))
	for _, method := range parsed.Methods {
		name := method.RawName
		if name == "" {
			name = method.Name
		}
		methods[MethodKey{Name: name, Arity: len(method.Inputs)}] = method
	}
	return &Registry{abi: parsed, methods: methods}
}

// Lookup returns the method matching name and arity.
func (r *Registry) Lookup(name string, arity int) (abi.Method, bool) {
	if r == nil {
		return abi.Method{}, false
	}
	method, ok := r.methods[MethodKey{Name: name, Arity: arity}]
	return method, ok
}

// Contract binds a registry to a deployed address.
type Contract struct {
	Address  common.Address
	Registry *Registry
}

// NewContract builds a Contract from an address and a parsed ABI.
func NewContract(address common.Address, parsed abi.ABI) Contract {
	return Contract{Address: address, Registry: NewRegistry(parsed)}
}
