package multicall

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Result is the decoded outcome of one descriptor. Data is nil when the slot
// failed; Err then distinguishes a revert or decode failure from a genuine
// zero value.
type Result struct {
	Correlation interface{}
	BatchTag    int
	Data        interface{}
	Err         error
}

// OK reports whether the slot carries data.
func (r Result) OK() bool {
	return r.Data != nil
}

// BigInt returns the scalar value as a big.Int.
func (r Result) BigInt() (*big.Int, bool) {
	if r.Data == nil {
		return nil, false
	}
	value, err := AsBigInt(r.Data)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Address returns the scalar value as an address.
func (r Result) Address() (common.Address, bool) {
	if r.Data == nil {
		return common.Address{}, false
	}
	value, err := AsAddress(r.Data)
	if err != nil {
		return common.Address{}, false
	}
	return value, true
}

// Bool returns the scalar value as a bool.
func (r Result) Bool() (bool, bool) {
	value, ok := r.Data.(bool)
	return value, ok
}

// Tuple is a multi-value return addressable by position and by declared name.
type Tuple struct {
	Values []interface{}
	Names  []string
}

// Len returns the number of values.
func (t Tuple) Len() int {
	return len(t.Values)
}

// At returns the value at position i.
func (t Tuple) At(i int) (interface{}, bool) {
	if i < 0 || i >= len(t.Values) {
		return nil, false
	}
	return t.Values[i], true
}

// Get returns the value declared under name.
func (t Tuple) Get(name string) (interface{}, bool) {
	if name == "" {
		return nil, false
	}
	for i, n := range t.Names {
		if n == name && i < len(t.Values) {
			return t.Values[i], true
		}
	}
	return nil, false
}

func shapeValues(values []interface{}, names []string) interface{} {
	if len(values) == 1 {
		return values[0]
	}
	return Tuple{Values: values, Names: append([]string(nil), names...)}
}

// AsAddress converts an ABI-decoded value into an address.
func AsAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// AsBigInt converts an ABI-decoded integer into a fresh big.Int.
func AsBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil big int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
