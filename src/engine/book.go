// Package engine implements a single-symbol, price-time-priority limit
// order book: the matching algorithm, its two price-ordered sides, and
// the pooled Order/Level allocation that backs them.
//
// A Book is not safe for concurrent use. Callers that need one book per
// symbol under concurrent access should serialize access per symbol (see
// src/registry), which keeps multi-symbol sharding a harness concern
// rather than a core one.
package engine

import (
	"github.com/google/btree"

	"matchbook/src/pool"
)

// Pool chunk sizes: orders turn over far more often than price levels,
// so they get a larger slab.
const (
	orderChunkSize = 4096
	levelChunkSize = 256
)

// asksLess orders the ask side ascending — lowest price first.
func asksLess(a, b *level) bool { return a.price < b.price }

// bidsLess orders the bid side descending — highest price first.
func bidsLess(a, b *level) bool { return a.price > b.price }

// TradeSink receives every trade report produced by a match. It is
// invoked synchronously, in fill order, before the submit call that
// triggered the match returns. A sink must never call back into the
// Book that invoked it; a harness that needs to react to trades
// (logging, broadcast, persistence) should queue reports and drain them
// out-of-band on another goroutine.
type TradeSink func(TradeReport)

// Book is the core matching engine for a single symbol: two
// price-ordered sides, a global order index, and the pools that back
// both Orders and Levels.
type Book struct {
	bids *btree.BTreeG[*level]
	asks *btree.BTreeG[*level]

	bidByPrice map[Price]*level
	askByPrice map[Price]*level

	index  map[OrderId]*order
	nextID uint64

	orders *pool.Pool[order]
	levels *pool.Pool[level]

	sink TradeSink
}

// NewBook creates an empty Book with a no-op default trade sink.
func NewBook() *Book {
	b := &Book{
		bids:       btree.NewG(32, bidsLess),
		asks:       btree.NewG(32, asksLess),
		bidByPrice: make(map[Price]*level),
		askByPrice: make(map[Price]*level),
		index:      make(map[OrderId]*order),
		orders:     pool.New[order](orderChunkSize),
		levels:     pool.New[level](levelChunkSize),
		nextID:     1,
		sink:       func(TradeReport) {},
	}
	return b
}

// SetTradeSink installs fn as the Book's trade sink, replacing whatever
// was installed before (including the default no-op). A nil fn restores
// the no-op.
func (b *Book) SetTradeSink(fn TradeSink) {
	if fn == nil {
		fn = func(TradeReport) {}
	}
	b.sink = fn
}

// OrderCount returns the number of orders currently resting in the book.
func (b *Book) OrderCount() int {
	return len(b.index)
}

// HasLevel reports whether the given side has any resting volume at
// price.
func (b *Book) HasLevel(side Side, price Price) bool {
	_, ok := b.sideIndex(side)[price]
	return ok
}

// VolumeAt returns the aggregate resting quantity at (side, price), or 0
// if there is no such level.
func (b *Book) VolumeAt(side Side, price Price) Quantity {
	if l, ok := b.sideIndex(side)[price]; ok {
		return l.totalVolume
	}
	return 0
}

func (b *Book) sideIndex(side Side) map[Price]*level {
	if side == Buy {
		return b.bidByPrice
	}
	return b.askByPrice
}

func (b *Book) sideTree(side Side) *btree.BTreeG[*level] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) oppositeTree(side Side) *btree.BTreeG[*level] {
	if side == Buy {
		return b.asks
	}
	return b.bids
}

func (b *Book) oppositeIndex(side Side) map[Price]*level {
	if side == Buy {
		return b.askByPrice
	}
	return b.bidByPrice
}

// SubmitLimit assigns an id, matches it against the opposite side, and
// rests any residual quantity on the same side at price. qty must be
// > 0.
func (b *Book) SubmitLimit(side Side, price Price, qty Quantity) (OrderId, error) {
	if qty == 0 {
		return 0, ErrInvalidQuantity
	}

	id := OrderId(b.nextID)
	b.nextID++

	taker := b.orders.Acquire()
	taker.id = id
	taker.side = side
	taker.price = price
	taker.quantity = qty

	b.match(taker)

	if taker.quantity > 0 {
		b.rest(taker)
	} else {
		b.orders.Release(taker)
	}

	return id, nil
}

// SubmitMarket matches qty immediately against the opposite side at any
// price and returns the filled quantity (0 <= filled <= qty). The
// residual, if any, is discarded — market orders are never rested. The
// taker is never pool-backed: it is a stack-local value addressed only
// for the duration of the match.
func (b *Book) SubmitMarket(side Side, qty Quantity) (Quantity, error) {
	if qty == 0 {
		return 0, ErrInvalidQuantity
	}

	taker := order{id: 0, side: side, quantity: qty}
	if side == Buy {
		taker.price = maxPrice
	} else {
		taker.price = minPrice
	}

	b.match(&taker)

	return qty - taker.quantity, nil
}

// match crosses taker against the opposite side until taker is
// exhausted or the opposite side no longer crosses. Trade reports are
// emitted to the sink in fill order, before match returns.
func (b *Book) match(taker *order) {
	oppTree := b.oppositeTree(taker.side)
	oppIndex := b.oppositeIndex(taker.side)

	for taker.quantity > 0 {
		best, ok := oppTree.Min()
		if !ok {
			break
		}
		if taker.side == Buy && taker.price < best.price {
			break
		}
		if taker.side == Sell && taker.price > best.price {
			break
		}

		maker := best.head
		for maker != nil && taker.quantity > 0 {
			m := minQty(taker.quantity, maker.quantity)

			b.sink(TradeReport{
				MakerId:   maker.id,
				TakerId:   taker.id,
				Price:     best.price,
				Quantity:  m,
				Aggressor: taker.side,
			})

			taker.quantity -= m
			maker.quantity -= m
			best.totalVolume -= m

			if maker.quantity == 0 {
				next := maker.next
				best.unlink(maker)
				delete(b.index, maker.id)
				b.orders.Release(maker)
				maker = next
			} else {
				break
			}
		}

		if best.orderCount == 0 {
			oppTree.Delete(best)
			delete(oppIndex, best.price)
			b.levels.Release(best)
		}
	}
}

// rest registers ord in the global index and appends it to the
// same-side level at its price, allocating that level if this is the
// first order at that price.
func (b *Book) rest(ord *order) {
	tree := b.sideTree(ord.side)
	idx := b.sideIndex(ord.side)

	l, ok := idx[ord.price]
	if !ok {
		l = b.levels.Acquire()
		l.price = ord.price
		idx[ord.price] = l
		tree.ReplaceOrInsert(l)
	}

	l.append(ord)
	b.index[ord.id] = ord
}

// Cancel removes oid from the book if it is resting; unknown ids are a
// silent no-op.
func (b *Book) Cancel(oid OrderId) {
	ord, ok := b.index[oid]
	if !ok {
		return
	}

	idx := b.sideIndex(ord.side)
	tree := b.sideTree(ord.side)

	l := idx[ord.price]
	l.totalVolume -= ord.quantity
	l.unlink(ord)
	if l.orderCount == 0 {
		delete(idx, ord.price)
		tree.Delete(l)
		b.levels.Release(l)
	}

	delete(b.index, oid)
	b.orders.Release(ord)
}

// Snapshot returns up to depth (price, volume) pairs from each side,
// bids in descending price order and asks in ascending price order. A
// depth of 0 returns two empty slices.
func (b *Book) Snapshot(depth int) (bids, asks []LevelView) {
	if depth <= 0 {
		return nil, nil
	}

	bids = make([]LevelView, 0, depth)
	b.bids.Ascend(func(l *level) bool {
		bids = append(bids, LevelView{Price: l.price, Volume: l.totalVolume})
		return len(bids) < depth
	})

	asks = make([]LevelView, 0, depth)
	b.asks.Ascend(func(l *level) bool {
		asks = append(asks, LevelView{Price: l.price, Volume: l.totalVolume})
		return len(asks) < depth
	})

	return bids, asks
}

// PoolStats exposes the underlying Order/Level pool counters, used by
// the harness's Prometheus gauges (see src/api).
func (b *Book) PoolStats() (orders, levels pool.Stats) {
	return b.orders.Stats(), b.levels.Stats()
}

// LevelCounts returns the number of distinct resting price levels on
// each side, used by the harness's book-depth gauge.
func (b *Book) LevelCounts() (bidLevels, askLevels int) {
	return len(b.bidByPrice), len(b.askByPrice)
}

func minQty(a, b Quantity) Quantity {
	if a < b {
		return a
	}
	return b
}
