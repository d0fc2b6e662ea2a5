package provider

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/jbelanger/exitbook/internal/ingestion/domain"
	"github.com/jbelanger/exitbook/internal/ingestion/ingesterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneShotFake is a Provider whose Execute behavior is scripted per test. Streaming is
// never exercised through it.
type oneShotFake struct {
	name  string
	exec  func(op Operation) (OpOutput, error)
	calls int
}

func (f *oneShotFake) Name() string { return f.name }
func (f *oneShotFake) Metadata() Metadata {
	return Metadata{
		Name:   f.name,
		Domain: "ethereum",
		Capabilities: Capabilities{
			SupportedOperations: []OperationKind{OpBalance},
		},
	}
}
func (f *oneShotFake) Execute(ctx context.Context, op Operation) (OpOutput, error) {
	f.calls++
	return f.exec(op)
}
func (f *oneShotFake) ExecuteStreaming(ctx context.Context, op Operation, resumeCursor *domain.CursorState) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {}
}
func (f *oneShotFake) IsHealthy() bool { return true }
func (f *oneShotFake) Destroy() error  { return nil }

func TestManager_ExecuteOnce_FailsOverToNextProvider(t *testing.T) {
	registry := NewRegistry()
	p1 := &oneShotFake{name: "etherscan", exec: func(op Operation) (OpOutput, error) {
		return OpOutput{}, errors.New("503 from upstream")
	}}
	p2 := &oneShotFake{name: "alchemygo", exec: func(op Operation) (OpOutput, error) {
		return OpOutput{Value: "1000000"}, nil
	}}
	require.NoError(t, registry.Register(p1.Metadata(), func(cfg Config) (Provider, error) { return p1, nil }))
	require.NoError(t, registry.Register(p2.Metadata(), func(cfg Config) (Provider, error) { return p2, nil }))

	mgr := newTestManager(t, registry)
	out, err := mgr.ExecuteOnce(context.Background(), "ethereum", Operation{Kind: OpBalance, Address: "0xabc"}, "")
	require.NoError(t, err)
	assert.Equal(t, "1000000", out.Value)
	assert.Equal(t, 1, p1.calls)
	assert.Equal(t, 1, p2.calls)
}

func TestManager_ExecuteOnce_AllProvidersFailed(t *testing.T) {
	registry := NewRegistry()
	p := &oneShotFake{name: "etherscan", exec: func(op Operation) (OpOutput, error) {
		return OpOutput{}, errors.New("permanent failure")
	}}
	require.NoError(t, registry.Register(p.Metadata(), func(cfg Config) (Provider, error) { return p, nil }))

	mgr := newTestManager(t, registry)
	_, err := mgr.ExecuteOnce(context.Background(), "ethereum", Operation{Kind: OpBalance}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingesterr.ErrAllProvidersFailed))
}

func TestManager_ExecuteOnce_NoProviders(t *testing.T) {
	mgr := newTestManager(t, NewRegistry())
	_, err := mgr.ExecuteOnce(context.Background(), "solana", Operation{Kind: OpBalance}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ingesterr.ErrNoProviders))
}

func TestManager_ExecuteOnce_CachesByKey(t *testing.T) {
	registry := NewRegistry()
	p := &oneShotFake{name: "etherscan", exec: func(op Operation) (OpOutput, error) {
		return OpOutput{Value: "42"}, nil
	}}
	require.NoError(t, registry.Register(p.Metadata(), func(cfg Config) (Provider, error) { return p, nil }))

	mgr := newTestManager(t, registry)
	op := Operation{Kind: OpBalance, Address: "0xabc", CacheKey: "acct-1:ethereum:0xabc"}

	out, err := mgr.ExecuteOnce(context.Background(), "ethereum", op, "")
	require.NoError(t, err)
	assert.Equal(t, "42", out.Value)

	out, err = mgr.ExecuteOnce(context.Background(), "ethereum", op, "")
	require.NoError(t, err)
	assert.Equal(t, "42", out.Value)
	assert.Equal(t, 1, p.calls, "second call must be served from the cache")
}

func TestManager_ExecuteOnce_SkipsIncapableProvider(t *testing.T) {
	registry := NewRegistry()
	streamOnly := &fakeProvider{
		name: "history-only",
		caps: Capabilities{SupportedOperations: []OperationKind{OpTransactionHistory}},
	}
	require.NoError(t, registry.Register(streamOnly.Metadata(), func(cfg Config) (Provider, error) { return streamOnly, nil }))

	mgr := newTestManager(t, registry)
	_, err := mgr.ExecuteOnce(context.Background(), "ethereum", Operation{Kind: OpBalance}, "")
	require.Error(t, err, "a provider without the balance capability must be rejected before any call")
}
