package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vaultScope/internal/contracts"
	"vaultScope/internal/observability"
)

// ErrUnsupportedChain is returned when no aggregator is deployed on the chain.
var ErrUnsupportedChain = errors.New("no aggregator for chain")

// Caller is the read-only call primitive. chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithAddress registers or overrides the aggregator deployment for a chain.
func WithAddress(chainID uint64, address common.Address) Option {
	return func(a *Aggregator) {
		a.addresses[chainID] = address
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = metrics
	}
}

// WithFallbackConcurrency bounds the number of in-flight fallback calls.
// Zero or negative means unbounded.
func WithFallbackConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.fallbackLimit = n
	}
}

// Aggregator turns many read calls into one aggregate eth_call, falling back
// to parallel individual calls when the aggregate reverts. It holds no state
// between executions and is safe for concurrent use.
type Aggregator struct {
	caller        Caller
	chainID       uint64
	addresses     map[uint64]common.Address
	logger        *zap.Logger
	metrics       *observability.Metrics
	fallbackLimit int
}

// aggregateCall mirrors the (address target, bytes callData) tuple.
type aggregateCall struct {
	Target   common.Address
	CallData []byte
}

// NewAggregator builds an Aggregator for the given chain.
func NewAggregator(caller Caller, chainID uint64, logger *zap.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	addresses := make(map[uint64]common.Address, len(defaultAddresses))
	for id, addr := range defaultAddresses {
		addresses[id] = addr
	}
	a := &Aggregator{
		caller:    caller,
		chainID:   chainID,
		addresses: addresses,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ChainID returns the chain the aggregator submits to.
func (a *Aggregator) ChainID() uint64 {
	return a.chainID
}

// ExecuteBatch runs all descriptors in a single aggregate call and returns one
// Result per descriptor in input order. If the aggregate call fails every
// descriptor is re-issued individually and in parallel; the result shape is the
// same on both paths.
func (a *Aggregator) ExecuteBatch(ctx context.Context, descs []Descriptor) ([]Result, error) {
	if len(descs) == 0 {
		return nil, nil
	}
	target, ok := a.addresses[a.chainID]
	if !ok || target == (common.Address{}) {
		return nil, fmt.Errorf("%w %d", ErrUnsupportedChain, a.chainID)
	}
	if a.caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}

	started := time.Now()
	log := a.logger.With(zap.String("batch_id", uuid.NewString()), zap.Int("calls", len(descs)))
	if a.metrics != nil {
		a.metrics.BatchSize.Observe(float64(len(descs)))
		defer func() { a.metrics.AggregateTiming.Observe(time.Since(started).Seconds()) }()
	}

	results, err := a.aggregate(ctx, target, descs)
	if err == nil {
		a.observeAggregate("ok")
		a.observeFailedSlots("aggregate", results)
		log.Debug("aggregate complete", zap.Duration("elapsed", time.Since(started)))
		return results, nil
	}

	a.observeAggregate("error")
	log.Warn("aggregate call failed, falling back to individual calls", zap.Error(err))

	results = a.fallback(ctx, descs, log)
	a.observeFailedSlots("fallback", results)
	return results, nil
}

// ExecuteMultipleBatches flattens the batches into one ExecuteBatch call and
// regroups the results by batch, preserving order inside each batch. It never
// adds network round trips compared to executing the flattened list.
func (a *Aggregator) ExecuteMultipleBatches(ctx context.Context, batches [][]Descriptor) ([][]Result, error) {
	total := 0
	for _, batch := range batches {
		total += len(batch)
	}

	flat := make([]Descriptor, 0, total)
	for tag, batch := range batches {
		for _, desc := range batch {
			flat = append(flat, desc.WithBatchTag(tag))
		}
	}

	results, err := a.ExecuteBatch(ctx, flat)
	if err != nil {
		return nil, err
	}

	grouped := make([][]Result, len(batches))
	for i, batch := range batches {
		grouped[i] = make([]Result, 0, len(batch))
	}
	for _, res := range results {
		if res.BatchTag < 0 || res.BatchTag >= len(grouped) {
			continue
		}
		grouped[res.BatchTag] = append(grouped[res.BatchTag], res)
	}
	return grouped, nil
}

func (a *Aggregator) aggregate(ctx context.Context, target common.Address, descs []Descriptor) ([]Result, error) {
	parsed, err := contracts.MulticallABI()
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}

	calls := make([]aggregateCall, len(descs))
	for i, desc := range descs {
		calls[i] = aggregateCall{Target: desc.Target, CallData: desc.CallData}
	}

	data, err := parsed.Pack(contracts.AggregateMethod, calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate: %w", err)
	}

	resp, err := a.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call aggregate: %w", err)
	}

	values, err := parsed.Unpack(contracts.AggregateMethod, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("aggregate return size %d", len(values))
	}
	blobs, ok := values[1].([][]byte)
	if !ok {
		return nil, fmt.Errorf("aggregate return data type %T", values[1])
	}
	if len(blobs) != len(descs) {
		return nil, fmt.Errorf("aggregate returned %d results for %d calls", len(blobs), len(descs))
	}

	results := make([]Result, len(descs))
	for i, desc := range descs {
		results[i] = decodeSlot(desc, blobs[i])
	}
	return results, nil
}

func (a *Aggregator) fallback(ctx context.Context, descs []Descriptor, log *zap.Logger) []Result {
	if a.metrics != nil {
		a.metrics.FallbackBursts.Inc()
	}

	results := make([]Result, len(descs))
	var g errgroup.Group
	if a.fallbackLimit > 0 {
		g.SetLimit(a.fallbackLimit)
	}
	for i, desc := range descs {
		i, desc := i, desc
		g.Go(func() error {
			resp, err := a.caller.CallContract(ctx, desc.CallMsg(), nil)
			if err != nil {
				results[i] = failedSlot(desc, fmt.Errorf("call %s: %w", desc.Method, err))
				return nil
			}
			results[i] = decodeSlot(desc, resp)
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, res := range results {
		errs = multierr.Append(errs, res.Err)
	}
	if errs != nil {
		log.Warn("fallback completed with failed calls",
			zap.Int("failed", len(multierr.Errors(errs))),
			zap.Error(errs),
		)
	}
	return results
}

func decodeSlot(desc Descriptor, blob []byte) Result {
	res := Result{Correlation: desc.Correlation, BatchTag: desc.BatchTag}
	values, err := unpackOutputs(desc.outputs, blob)
	if err != nil {
		res.Err = fmt.Errorf("unpack %s: %w", desc.Method, err)
		return res
	}
	res.Data = shapeValues(values, desc.ReturnNames)
	return res
}

func unpackOutputs(outputs abi.Arguments, blob []byte) ([]interface{}, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no outputs declared")
	}
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty return data")
	}
	values, err := outputs.Unpack(blob)
	if err != nil {
		return nil, err
	}
	if len(values) != len(outputs) {
		return nil, fmt.Errorf("return size %d, want %d", len(values), len(outputs))
	}
	return values, nil
}

func failedSlot(desc Descriptor, err error) Result {
	return Result{Correlation: desc.Correlation, BatchTag: desc.BatchTag, Err: err}
}

func (a *Aggregator) observeAggregate(outcome string) {
	if a.metrics == nil {
		return
	}
	a.metrics.AggregateCalls.WithLabelValues(outcome).Inc()
}

func (a *Aggregator) observeFailedSlots(path string, results []Result) {
	if a.metrics == nil {
		return
	}
	for _, res := range results {
		if res.Err != nil {
			a.metrics.FailedSlots.WithLabelValues(path).Inc()
		}
	}
}
