package registry_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/src/engine"
	"matchbook/src/registry"
)

func TestSubmitLimitAcceptedThenFilled(t *testing.T) {
	r := registry.New(nil)

	sell, trades, err := r.SubmitLimit("AAPL", engine.Sell, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, registry.Accepted, sell.Status)

	buy, trades, err := r.SubmitLimit("AAPL", engine.Buy, 100, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Equal(t, registry.Filled, buy.Status)
}

func TestSubmitLimitPartialFillStatus(t *testing.T) {
	r := registry.New(nil)

	_, _, err := r.SubmitLimit("AAPL", engine.Sell, 100, 10)
	require.NoError(t, err)

	buy, trades, err := r.SubmitLimit("AAPL", engine.Buy, 100, 4)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Equal(t, registry.PartialFill, buy.Status)
	assert.Equal(t, engine.Quantity(4), buy.Filled)
}

func TestCancelUnknownClientIDFails(t *testing.T) {
	r := registry.New(nil)

	_, err := r.Cancel("does-not-exist")
	assert.ErrorIs(t, err, registry.ErrUnknownOrder)
}

func TestCancelAfterFillFails(t *testing.T) {
	r := registry.New(nil)

	sell, _, err := r.SubmitLimit("AAPL", engine.Sell, 100, 5)
	require.NoError(t, err)
	_, _, err = r.SubmitLimit("AAPL", engine.Buy, 100, 5)
	require.NoError(t, err)

	_, err = r.Cancel(sell.ClientID)
	assert.ErrorIs(t, err, registry.ErrUnknownOrder)
}

func TestSymbolsAreIsolated(t *testing.T) {
	r := registry.New(nil)

	_, _, err := r.SubmitLimit("AAPL", engine.Sell, 100, 10)
	require.NoError(t, err)

	bids, asks := r.Snapshot("GOOG", 10)
	assert.Empty(t, bids)
	assert.Empty(t, asks)

	_, aaplAsks := r.Snapshot("AAPL", 10)
	assert.Len(t, aaplAsks, 1)
}

func TestTradeObserverFiresForEverySubmitCall(t *testing.T) {
	var mu sync.Mutex
	var seen []registry.ReportedTrade

	r := registry.New(func(symbol string, report registry.ReportedTrade) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, report)
	})

	_, _, err := r.SubmitLimit("AAPL", engine.Sell, 100, 10)
	require.NoError(t, err)
	_, _, err = r.SubmitLimit("AAPL", engine.Buy, 100, 10)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 1)
	assert.NotEqual(t, uuid.Nil, seen[0].ReportID)
}

func TestMarketOrderNeverGetsInternalIDToCancel(t *testing.T) {
	r := registry.New(nil)

	_, _, err := r.SubmitLimit("AAPL", engine.Sell, 100, 10)
	require.NoError(t, err)

	meta, trades, err := r.SubmitMarket("AAPL", engine.Buy, 5)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Equal(t, registry.Market, meta.Type)

	// Cancelling a filled market order is rejected just like any other
	// terminal order.
	_, err = r.Cancel(meta.ClientID)
	assert.ErrorIs(t, err, registry.ErrUnknownOrder)
}

func TestWarmCreatesBookWithoutSubmitting(t *testing.T) {
	r := registry.New(nil)
	r.Warm("AAPL")

	bidLevels, askLevels, _, _ := r.Stats("AAPL")
	assert.Equal(t, 0, bidLevels)
	assert.Equal(t, 0, askLevels)
}
