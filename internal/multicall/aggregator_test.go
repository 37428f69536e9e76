package multicall

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vaultScope/internal/contracts"
	"vaultScope/internal/observability"
)

var (
	tokenA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	user   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func mainnetAggregator() common.Address {
	addr, _ := AddressFor(1)
	return addr
}

// newTokenChain serves balanceOf(user)=1000 on tokenA, decimals()=18 and
// totalSupply()=5000 on tokenB.
func newTokenChain(t *testing.T) (*fakeChain, abi.ABI) {
	t.Helper()
	parsed, err := contracts.ERC20ABI()
	require.NoError(t, err)

	chain := newFakeChain(mainnetAggregator())
	chain.handle(tokenA, parsed.Methods["balanceOf"].ID, func(args []byte) ([]byte, error) {
		values, err := parsed.Methods["balanceOf"].Inputs.Unpack(args)
		if err != nil {
			return nil, err
		}
		if values[0].(common.Address) != user {
			return packUint(parsed, "balanceOf", big.NewInt(0)), nil
		}
		return packUint(parsed, "balanceOf", big.NewInt(1000)), nil
	})
	chain.handle(tokenB, parsed.Methods["decimals"].ID, func([]byte) ([]byte, error) {
		return parsed.Methods["decimals"].Outputs.Pack(uint8(18))
	})
	chain.handle(tokenB, parsed.Methods["totalSupply"].ID, func([]byte) ([]byte, error) {
		return packUint(parsed, "totalSupply", big.NewInt(5000)), nil
	})
	return chain, parsed
}

func TestExecuteBatchEndToEnd(t *testing.T) {
	chain, parsed := newTokenChain(t)
	agg := NewAggregator(chain, 1, zap.NewNop())

	descs := []Descriptor{
		BuildOrZero(NewContract(tokenA, parsed), "balanceOf", "a", user),
		BuildOrZero(NewContract(tokenB, parsed), "decimals", "b"),
	}

	results, err := agg.ExecuteBatch(context.Background(), descs)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 0, big.NewInt(1000).Cmp(results[0].Data.(*big.Int)))
	assert.Equal(t, uint8(18), results[1].Data)
	assert.Equal(t, "a", results[0].Correlation)
	assert.Equal(t, "b", results[1].Correlation)

	aggregates, direct := chain.counts()
	assert.Equal(t, 1, aggregates)
	assert.Equal(t, 0, direct)

	require.GreaterOrEqual(t, len(chain.lastAggregate), 4)
	assert.Equal(t, "252dba42", hex.EncodeToString(chain.lastAggregate[:4]))

	// The payload must be exactly the documented tuple(address,bytes)[] encoding.
	mc, err := contracts.MulticallABI()
	require.NoError(t, err)
	want, err := mc.Pack(contracts.AggregateMethod, []aggregateCall{
		{Target: tokenA, CallData: descs[0].CallData},
		{Target: tokenB, CallData: descs[1].CallData},
	})
	require.NoError(t, err)
	assert.Equal(t, want, chain.lastAggregate)
}

func TestExecuteBatchPreservesOrder(t *testing.T) {
	chain, parsed := newTokenChain(t)
	agg := NewAggregator(chain, 1, nil)

	a := NewContract(tokenA, parsed)
	b := NewContract(tokenB, parsed)
	descs := []Descriptor{
		BuildOrZero(b, "totalSupply", 0),
		BuildOrZero(a, "balanceOf", 1, user),
		BuildOrZero(b, "decimals", 2),
		BuildOrZero(a, "balanceOf", 3, common.Address{}),
		BuildOrZero(b, "totalSupply", 4),
	}

	results, err := agg.ExecuteBatch(context.Background(), descs)
	require.NoError(t, err)
	require.Len(t, results, len(descs))
	for i, res := range results {
		assert.Equal(t, i, res.Correlation)
		assert.True(t, res.OK())
	}
	supply, ok := results[4].BigInt()
	require.True(t, ok)
	assert.Equal(t, int64(5000), supply.Int64())
	zero, ok := results[3].BigInt()
	require.True(t, ok)
	assert.Equal(t, 0, zero.Sign())
}

func TestExecuteMultipleBatchesRegroupsWithOneSubmission(t *testing.T) {
	chain, parsed := newTokenChain(t)
	agg := NewAggregator(chain, 1, nil)

	a := NewContract(tokenA, parsed)
	b := NewContract(tokenB, parsed)
	b0 := []Descriptor{
		BuildOrZero(a, "balanceOf", "b0-0", user),
		BuildOrZero(b, "decimals", "b0-1"),
	}
	b1 := []Descriptor{
		BuildOrZero(b, "totalSupply", "b1-0"),
		BuildOrZero(a, "balanceOf", "b1-1", user),
		BuildOrZero(b, "decimals", "b1-2"),
	}

	grouped, err := agg.ExecuteMultipleBatches(context.Background(), [][]Descriptor{b0, b1})
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	require.Len(t, grouped[0], 2)
	require.Len(t, grouped[1], 3)

	assert.Equal(t, "b0-0", grouped[0][0].Correlation)
	assert.Equal(t, "b0-1", grouped[0][1].Correlation)
	assert.Equal(t, "b1-0", grouped[1][0].Correlation)
	assert.Equal(t, "b1-1", grouped[1][1].Correlation)
	assert.Equal(t, "b1-2", grouped[1][2].Correlation)
	for tag, batch := range grouped {
		for _, res := range batch {
			assert.Equal(t, tag, res.BatchTag)
		}
	}

	aggregates, direct := chain.counts()
	assert.Equal(t, 1, aggregates)
	assert.Equal(t, 0, direct)

	// The caller's descriptors are not mutated by tagging.
	assert.Equal(t, 0, b1[0].BatchTag)
}

func TestExecuteBatchFallbackIsolatesFailures(t *testing.T) {
	chain, parsed := newTokenChain(t)
	metrics := observability.NewMetrics("test")
	agg := NewAggregator(chain, 1, zap.NewNop(), WithMetrics(metrics), WithFallbackConcurrency(2))

	a := NewContract(tokenA, parsed)
	b := NewContract(tokenB, parsed)
	// symbol() has no handler: it reverts, poisoning the aggregate.
	descs := []Descriptor{
		BuildOrZero(a, "balanceOf", 0, user),
		BuildOrZero(b, "symbol", 1),
		BuildOrZero(b, "decimals", 2),
		BuildOrZero(b, "totalSupply", 3),
	}

	results, err := agg.ExecuteBatch(context.Background(), descs)
	require.NoError(t, err)
	require.Len(t, results, len(descs))

	for i, res := range results {
		assert.Equal(t, i, res.Correlation)
	}
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.Error(t, results[1].Err)
	assert.True(t, errors.Is(results[1].Err, errRevert))
	assert.Equal(t, uint8(18), results[2].Data)
	assert.True(t, results[3].OK())

	aggregates, direct := chain.counts()
	assert.Equal(t, 1, aggregates)
	assert.Equal(t, len(descs), direct)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AggregateCalls.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FallbackBursts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FailedSlots.WithLabelValues("fallback")))
}

func TestExecuteBatchFallbackKeepsShapeWhenEverythingFails(t *testing.T) {
	chain := newFakeChain(mainnetAggregator())
	parsed, err := contracts.ERC20ABI()
	require.NoError(t, err)
	agg := NewAggregator(chain, 1, nil)

	descs := []Descriptor{
		BuildOrZero(NewContract(tokenA, parsed), "decimals", "x"),
		BuildOrZero(NewContract(tokenB, parsed), "decimals", "y"),
	}
	results, err := agg.ExecuteBatch(context.Background(), descs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Nil(t, res.Data)
		assert.Error(t, res.Err)
	}
}

func TestExecuteBatchDecodeFailureDegradesSlot(t *testing.T) {
	chain, parsed := newTokenChain(t)
	chain.handle(tokenA, parsed.Methods["totalSupply"].ID, func([]byte) ([]byte, error) {
		return []byte{0x01}, nil
	})
	agg := NewAggregator(chain, 1, nil)

	results, err := agg.ExecuteBatch(context.Background(), []Descriptor{
		BuildOrZero(NewContract(tokenA, parsed), "totalSupply", "bad"),
		BuildOrZero(NewContract(tokenB, parsed), "decimals", "good"),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].OK())
	assert.Error(t, results[0].Err)
	assert.Equal(t, uint8(18), results[1].Data)

	aggregates, direct := chain.counts()
	assert.Equal(t, 1, aggregates)
	assert.Equal(t, 0, direct)
}

func TestExecuteBatchUnsupportedChain(t *testing.T) {
	chain, parsed := newTokenChain(t)
	agg := NewAggregator(chain, 56, nil)

	results, err := agg.ExecuteBatch(context.Background(), []Descriptor{
		BuildOrZero(NewContract(tokenB, parsed), "decimals", nil),
	})
	require.ErrorIs(t, err, ErrUnsupportedChain)
	assert.Nil(t, results)

	aggregates, direct := chain.counts()
	assert.Zero(t, aggregates)
	assert.Zero(t, direct)
}

func TestWithAddressEnablesChain(t *testing.T) {
	custom := common.HexToAddress("0x5555555555555555555555555555555555555555")
	chain, parsed := newTokenChain(t)
	chain.aggregator = custom
	agg := NewAggregator(chain, 56, nil, WithAddress(56, custom))

	results, err := agg.ExecuteBatch(context.Background(), []Descriptor{
		BuildOrZero(NewContract(tokenB, parsed), "decimals", nil),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint8(18), results[0].Data)
}

func TestExecuteBatchEmpty(t *testing.T) {
	chain, _ := newTokenChain(t)
	agg := NewAggregator(chain, 1, nil)

	results, err := agg.ExecuteBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	aggregates, _ := chain.counts()
	assert.Zero(t, aggregates)
}

func TestTupleResultsAddressableByIndexAndName(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(`[
	  {"inputs": [], "name": "slot", "outputs": [{"type": "uint256", "name": "price"}, {"type": "bool", "name": "live"}], "stateMutability": "view", "type": "function"}
	]`))
	require.NoError(t, err)

	target := common.HexToAddress("0x4444444444444444444444444444444444444444")
	chain := newFakeChain(mainnetAggregator())
	chain.handle(target, parsed.Methods["slot"].ID, func([]byte) ([]byte, error) {
		return parsed.Methods["slot"].Outputs.Pack(big.NewInt(7), true)
	})
	agg := NewAggregator(chain, 1, nil)

	results, err := agg.ExecuteBatch(context.Background(), []Descriptor{
		BuildOrZero(NewContract(target, parsed), "slot", nil),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	tuple, ok := results[0].Data.(Tuple)
	require.True(t, ok)
	assert.Equal(t, 2, tuple.Len())

	byIndex, ok := tuple.At(1)
	require.True(t, ok)
	assert.Equal(t, true, byIndex)

	byName, ok := tuple.Get("price")
	require.True(t, ok)
	assert.Equal(t, int64(7), byName.(*big.Int).Int64())

	_, ok = tuple.Get("missing")
	assert.False(t, ok)
	_, ok = tuple.At(5)
	assert.False(t, ok)
}
