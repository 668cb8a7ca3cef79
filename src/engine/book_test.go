package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(b *Book) *[]TradeReport {
	var trades []TradeReport
	b.SetTradeSink(func(r TradeReport) { trades = append(trades, r) })
	return &trades
}

// S1 — full match, book empties.
func TestFullMatchEmptiesBook(t *testing.T) {
	b := NewBook()
	trades := collect(b)

	sellID, err := b.SubmitLimit(Sell, 100, 10)
	require.NoError(t, err)

	buyID, err := b.SubmitLimit(Buy, 100, 10)
	require.NoError(t, err)

	require.Len(t, *trades, 1)
	got := (*trades)[0]
	assert.Equal(t, sellID, got.MakerId)
	assert.Equal(t, buyID, got.TakerId)
	assert.Equal(t, Price(100), got.Price)
	assert.Equal(t, Quantity(10), got.Quantity)
	assert.Equal(t, Buy, got.Aggressor)

	assert.Equal(t, 0, b.OrderCount())
	assert.False(t, b.HasLevel(Sell, 100))
}

// S2 — partial match, maker residual.
func TestPartialMatchLeavesMakerResidual(t *testing.T) {
	b := NewBook()
	trades := collect(b)

	_, err := b.SubmitLimit(Sell, 100, 10)
	require.NoError(t, err)
	_, err = b.SubmitLimit(Buy, 100, 4)
	require.NoError(t, err)

	require.Len(t, *trades, 1)
	assert.Equal(t, Quantity(4), (*trades)[0].Quantity)
	assert.Equal(t, 1, b.OrderCount())
	assert.Equal(t, Quantity(6), b.VolumeAt(Sell, 100))
}

// S3 — snapshot after mixed limits.
func TestSnapshotAfterMixedLimits(t *testing.T) {
	b := NewBook()
	b.SetTradeSink(nil)

	_, _ = b.SubmitLimit(Sell, 105, 10)
	_, _ = b.SubmitLimit(Sell, 101, 10)
	_, _ = b.SubmitLimit(Sell, 103, 10)
	_, _ = b.SubmitLimit(Buy, 98, 5)
	_, _ = b.SubmitLimit(Buy, 99, 5)

	bids, asks := b.Snapshot(5)
	require.Equal(t, []LevelView{
		{Price: 101, Volume: 10},
		{Price: 103, Volume: 10},
		{Price: 105, Volume: 10},
	}, asks)
	require.Equal(t, []LevelView{
		{Price: 99, Volume: 5},
		{Price: 98, Volume: 5},
	}, bids)
}

// S4 — market order sweeps two levels.
func TestMarketOrderSweepsTwoLevels(t *testing.T) {
	b := NewBook()
	trades := collect(b)

	_, _ = b.SubmitLimit(Sell, 100, 10)
	_, _ = b.SubmitLimit(Sell, 101, 10)

	filled, err := b.SubmitMarket(Buy, 15)
	require.NoError(t, err)
	assert.Equal(t, Quantity(15), filled)

	require.Len(t, *trades, 2)
	assert.Equal(t, Price(100), (*trades)[0].Price)
	assert.Equal(t, Quantity(10), (*trades)[0].Quantity)
	assert.Equal(t, Price(101), (*trades)[1].Price)
	assert.Equal(t, Quantity(5), (*trades)[1].Quantity)

	assert.Equal(t, 1, b.OrderCount())
	assert.Equal(t, Quantity(5), b.VolumeAt(Sell, 101))
}

// S5 — price improvement: trade executes at the maker's price.
func TestPriceImprovementExecutesAtMakerPrice(t *testing.T) {
	b := NewBook()
	trades := collect(b)

	_, _ = b.SubmitLimit(Sell, 100, 10)
	_, err := b.SubmitLimit(Buy, 105, 10)
	require.NoError(t, err)

	require.Len(t, *trades, 1)
	assert.Equal(t, Price(100), (*trades)[0].Price)
	assert.Equal(t, 0, b.OrderCount())
}

// S6 — cancel preserves aggregates.
func TestCancelPreservesAggregates(t *testing.T) {
	b := NewBook()
	b.SetTradeSink(nil)

	first, _ := b.SubmitLimit(Sell, 100, 10)
	second, _ := b.SubmitLimit(Sell, 100, 7)
	assert.Equal(t, Quantity(17), b.VolumeAt(Sell, 100))

	b.Cancel(first)
	assert.Equal(t, Quantity(7), b.VolumeAt(Sell, 100))
	assert.Equal(t, 1, b.OrderCount())

	b.Cancel(second)
	assert.False(t, b.HasLevel(Sell, 100))
}

// S7 — market order against an empty book returns a zero fill, no error.
func TestMarketOrderAgainstEmptyBook(t *testing.T) {
	b := NewBook()
	filled, err := b.SubmitMarket(Buy, 50)
	require.NoError(t, err)
	assert.Equal(t, Quantity(0), filled)
}

// S8 — pool reuse: a released order slot is handed back out on the next
// acquire rather than growing a new chunk.
func TestPoolReuseAfterFullMatch(t *testing.T) {
	b := NewBook()
	b.SetTradeSink(nil)

	before, _ := b.PoolStats()

	_, _ = b.SubmitLimit(Sell, 100, 10)
	_, _ = b.SubmitLimit(Buy, 100, 10) // fully matches and releases both slots

	afterMatch, _ := b.PoolStats()
	assert.Equal(t, before.Misses, afterMatch.Misses, "two orders should still fit in the pre-warmed chunk")

	_, _ = b.SubmitLimit(Sell, 100, 5)
	afterReuse, _ := b.PoolStats()
	assert.Greater(t, afterReuse.Hits, afterMatch.Hits)
}

// FIFO within a level: the earliest resting order at a price is filled
// before later arrivals at the same price.
func TestFIFOWithinLevel(t *testing.T) {
	b := NewBook()
	trades := collect(b)

	a, _ := b.SubmitLimit(Sell, 100, 5)
	c, _ := b.SubmitLimit(Sell, 100, 5)

	_, err := b.SubmitLimit(Buy, 100, 6)
	require.NoError(t, err)

	require.Len(t, *trades, 2)
	assert.Equal(t, a, (*trades)[0].MakerId)
	assert.Equal(t, Quantity(5), (*trades)[0].Quantity)
	assert.Equal(t, c, (*trades)[1].MakerId)
	assert.Equal(t, Quantity(1), (*trades)[1].Quantity)
	assert.Equal(t, Quantity(4), b.VolumeAt(Sell, 100))
}

// No cross: the book never rests a level that would cross the opposite
// side — an incoming order that would cross is matched away first.
func TestNoCrossInvariant(t *testing.T) {
	b := NewBook()
	b.SetTradeSink(nil)

	_, _ = b.SubmitLimit(Sell, 100, 5)
	_, _ = b.SubmitLimit(Buy, 101, 3)

	bids, asks := b.Snapshot(10)
	if len(bids) > 0 && len(asks) > 0 {
		assert.Less(t, int64(bids[0].Price), int64(asks[0].Price))
	}
}

func TestCancelUnknownOrderIsNoop(t *testing.T) {
	b := NewBook()
	b.Cancel(OrderId(99999))
	assert.Equal(t, 0, b.OrderCount())
}

func TestInvalidQuantityRejected(t *testing.T) {
	b := NewBook()
	id, err := b.SubmitLimit(Buy, 100, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, OrderId(0), id)

	filled, err := b.SubmitMarket(Buy, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, Quantity(0), filled)
}
