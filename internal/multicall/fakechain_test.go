package multicall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vaultScope/internal/contracts"
)

var errRevert = errors.New("execution reverted")

type callKey struct {
	target   common.Address
	selector string
}

type handler func(args []byte) ([]byte, error)

// fakeChain answers aggregate payloads and direct calls from registered handlers.
// A handler error inside an aggregate reverts the whole aggregate, like Multicall v1.
type fakeChain struct {
	aggregator common.Address

	mu              sync.Mutex
	handlers        map[callKey]handler
	aggregateCalls  int
	directCalls     int
	lastAggregate   []byte
	failAggregateAt int
}

func newFakeChain(aggregator common.Address) *fakeChain {
	return &fakeChain{aggregator: aggregator, handlers: make(map[callKey]handler), failAggregateAt: -1}
}

func (f *fakeChain) handle(target common.Address, selector []byte, h handler) {
	f.handlers[callKey{target: target, selector: string(selector)}] = h
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, fmt.Errorf("missing target")
	}
	if *msg.To == f.aggregator {
		return f.serveAggregate(msg.Data)
	}

	f.mu.Lock()
	f.directCalls++
	f.mu.Unlock()
	return f.dispatch(*msg.To, msg.Data)
}

func (f *fakeChain) serveAggregate(data []byte) ([]byte, error) {
	f.mu.Lock()
	f.aggregateCalls++
	f.lastAggregate = append([]byte(nil), data...)
	f.mu.Unlock()

	parsed, err := contracts.MulticallABI()
	if err != nil {
		return nil, err
	}
	method := parsed.Methods[contracts.AggregateMethod]
	if !bytes.Equal(data[:4], method.ID) {
		return nil, fmt.Errorf("unexpected selector %x", data[:4])
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(values[0], new([]aggregateCall)).(*[]aggregateCall)

	blobs := make([][]byte, len(calls))
	for i, call := range calls {
		if i == f.failAggregateAt {
			return nil, errRevert
		}
		out, err := f.dispatch(call.Target, call.CallData)
		if err != nil {
			return nil, err
		}
		blobs[i] = out
	}
	return method.Outputs.Pack(big.NewInt(19_000_000), blobs)
}

func (f *fakeChain) dispatch(target common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errRevert
	}
	h, ok := f.handlers[callKey{target: target, selector: string(data[:4])}]
	if !ok {
		return nil, errRevert
	}
	return h(data[4:])
}

func (f *fakeChain) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aggregateCalls, f.directCalls
}

func packUint(t abi.ABI, method string, value *big.Int) []byte {
	out, err := t.Methods[method].Outputs.Pack(value)
	if err != nil {
		panic(err)
	}
	return out
}
