package multicall

import (
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Descriptor is a self-contained description of one read call. It is built by
// Build and treated as immutable afterwards; WithBatchTag returns a copy.
type Descriptor struct {
	Target      common.Address
	CallData    []byte
	Method      string
	ArgTypes    []string
	ReturnTypes []string
	ReturnNames []string
	BatchTag    int
	Correlation interface{}

	outputs abi.Arguments
}

// Build resolves method on the contract by name and len(args), sanitizes
// address arguments and encodes the call. It reports false when no descriptor
// can be built: unknown method, no declared outputs, zero target or an
// encoding failure. Optional methods on heterogeneous vaults rely on this
// returning false instead of failing.
func Build(contract Contract, method string, args []interface{}, correlation interface{}) (Descriptor, bool) {
	if contract.Address == (common.Address{}) {
		return Descriptor{}, false
	}

	m, ok := contract.Registry.Lookup(method, len(args))
	if !ok || len(m.Outputs) == 0 {
		return Descriptor{}, false
	}

	sanitized := make([]interface{}, len(args))
	argTypes := make([]string, len(m.Inputs))
	for i, input := range m.Inputs {
		argTypes[i] = input.Type.String()
		if input.Type.T == abi.AddressTy {
			sanitized[i] = sanitizeAddress(args[i])
			continue
		}
		sanitized[i] = args[i]
	}

	packed, err := m.Inputs.Pack(sanitized...)
	if err != nil {
		return Descriptor{}, false
	}
	callData := make([]byte, 0, len(m.ID)+len(packed))
	callData = append(callData, m.ID...)
	callData = append(callData, packed...)

	returnTypes := make([]string, len(m.Outputs))
	returnNames := make([]string, len(m.Outputs))
	for i, output := range m.Outputs {
		returnTypes[i] = output.Type.String()
		returnNames[i] = output.Name
	}

	return Descriptor{
		Target:      contract.Address,
		CallData:    callData,
		Method:      method,
		ArgTypes:    argTypes,
		ReturnTypes: returnTypes,
		ReturnNames: returnNames,
		Correlation: correlation,
		outputs:     append(abi.Arguments(nil), m.Outputs...),
	}, true
}

// BuildOrZero is Build returning the zero Descriptor on failure, which
// Compact drops.
func BuildOrZero(contract Contract, method string, correlation interface{}, args ...interface{}) Descriptor {
	desc, _ := Build(contract, method, args, correlation)
	return desc
}

// Valid reports whether the descriptor came out of a successful Build.
func (d Descriptor) Valid() bool {
	return d.Target != (common.Address{}) && len(d.CallData) >= 4
}

// WithBatchTag returns a copy tagged with the given batch index.
func (d Descriptor) WithBatchTag(tag int) Descriptor {
	d.BatchTag = tag
	return d
}

// CallMsg is the raw re-callable reference used by the fallback path.
func (d Descriptor) CallMsg() ethereum.CallMsg {
	to := d.Target
	return ethereum.CallMsg{To: &to, Data: d.CallData}
}

// Compact drops descriptors that were never built.
func Compact(descs []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(descs))
	for _, desc := range descs {
		if desc.Valid() {
			out = append(out, desc)
		}
	}
	return out
}

// sanitizeAddress converts an address-typed argument, substituting the zero
// address for anything malformed so the batch stays well-formed.
func sanitizeAddress(value interface{}) common.Address {
	switch v := value.(type) {
	case common.Address:
		return v
	case *common.Address:
		if v == nil {
			return common.Address{}
		}
		return *v
	case string:
		v = strings.TrimSpace(v)
		if !common.IsHexAddress(v) {
			return common.Address{}
		}
		return common.HexToAddress(v)
	default:
		return common.Address{}
	}
}
