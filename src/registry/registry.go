// Package registry turns the single-symbol, single-threaded engine.Book
// into a multi-symbol service: one Book per symbol, each serialized by
// its own mutex, plus a harness-level order index keyed by a
// client-facing string id (the core's OrderId is only unique within one
// Book, so a multi-symbol deployment needs its own identifier space).
package registry

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchbook/src/engine"
	"matchbook/src/pool"
)

// OrderType distinguishes a resting limit order from an
// immediate-or-nothing market order at the harness level (the core
// tells them apart only by sentinel pricing).
type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Limit {
		return "LIMIT"
	}
	return "MARKET"
}

// MarshalJSON renders OrderType as its string form.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Status tracks an order's harness-visible lifecycle. The core itself
// has no notion of "status" — only resting-or-not — so this is recovered
// purely at the harness layer.
type Status uint8

const (
	Accepted Status = iota
	PartialFill
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "ACCEPTED"
	case PartialFill:
		return "PARTIAL_FILL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// MarshalJSON renders Status as its string form so API responses read
// "ACCEPTED" rather than a bare integer.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// OrderMeta is the harness-level record for one submitted order: engine
// identity plus the status bookkeeping the core does not track.
type OrderMeta struct {
	ClientID  string
	Symbol    string
	Side      engine.Side
	Type      OrderType
	Price     engine.Price
	Quantity  engine.Quantity
	Filled    engine.Quantity
	Status    Status
	Submitted time.Time

	internalID OrderId
}

// OrderId is the engine's per-book identifier, only meaningful alongside
// a Symbol.
type OrderId = engine.OrderId

var (
	// ErrUnknownSymbol is returned when a query names a symbol with no
	// book.
	ErrUnknownSymbol = errors.New("registry: unknown symbol")
	// ErrUnknownOrder is returned when a query names a client id with no
	// matching order.
	ErrUnknownOrder = errors.New("registry: unknown order")
)

// ReportedTrade wraps a core engine.TradeReport with a harness-generated
// report id. The core has no reason to carry one — a single-threaded
// book needs no external handle for a fill it already applied — but a
// client reading the trade feed or a submit response needs a stable id
// to correlate or de-duplicate reports across retries.
type ReportedTrade struct {
	ReportID uuid.UUID
	engine.TradeReport
}

// TradeObserver is invoked for every trade in every book, regardless of
// which submit call produced it. It is the out-of-band hook a harness
// uses to log, meter, or broadcast trades without the Book's sink ever
// re-entering the Book (see src/api, which wires logging, Prometheus,
// and a websocket feed through this).
type TradeObserver func(symbol string, report ReportedTrade)

type bookEntry struct {
	mu        sync.RWMutex
	book      *engine.Book
	collector *[]ReportedTrade
}

// Registry owns one Book per symbol and a global order index.
type Registry struct {
	observer TradeObserver

	booksMu sync.RWMutex
	books   map[string]*bookEntry

	ordersMu sync.RWMutex
	orders   map[string]*OrderMeta
}

// New creates an empty Registry. observer may be nil.
func New(observer TradeObserver) *Registry {
	if observer == nil {
		observer = func(string, ReportedTrade) {}
	}
	return &Registry{
		observer: observer,
		books:    make(map[string]*bookEntry),
		orders:   make(map[string]*OrderMeta),
	}
}

// bookFor returns the entry for symbol, creating it (and its engine.Book)
// on first use. Mirrors the double-checked-locking creation pattern used
// to size one lock per symbol rather than one lock for the whole
// registry.
func (r *Registry) bookFor(symbol string) *bookEntry {
	r.booksMu.RLock()
	e, ok := r.books[symbol]
	r.booksMu.RUnlock()
	if ok {
		return e
	}

	r.booksMu.Lock()
	defer r.booksMu.Unlock()
	if e, ok = r.books[symbol]; ok {
		return e
	}

	e = &bookEntry{book: engine.NewBook()}
	e.book.SetTradeSink(func(report engine.TradeReport) {
		reported := ReportedTrade{ReportID: uuid.New(), TradeReport: report}
		if e.collector != nil {
			*e.collector = append(*e.collector, reported)
		}
		r.observer(symbol, reported)
	})
	r.books[symbol] = e
	return e
}

// SubmitLimit submits a resting-or-cross limit order on symbol and
// returns its harness metadata plus the trades it produced.
func (r *Registry) SubmitLimit(symbol string, side engine.Side, price engine.Price, qty engine.Quantity) (*OrderMeta, []ReportedTrade, error) {
	if qty == 0 {
		return nil, nil, engine.ErrInvalidQuantity
	}

	e := r.bookFor(symbol)

	e.mu.Lock()
	var trades []ReportedTrade
	e.collector = &trades
	id, err := e.book.SubmitLimit(side, price, qty)
	e.collector = nil
	e.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	filled := sumFilled(trades)
	meta := &OrderMeta{
		ClientID:   uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Type:       Limit,
		Price:      price,
		Quantity:   qty,
		Filled:     filled,
		Status:     statusFor(filled, qty),
		Submitted:  time.Now(),
		internalID: id,
	}

	r.ordersMu.Lock()
	r.orders[meta.ClientID] = meta
	r.ordersMu.Unlock()

	return meta, trades, nil
}

// SubmitMarket submits an immediate market order on symbol and returns
// its harness metadata plus the trades it produced. A market order is
// never rested; Filled may be less than Quantity if the opposite side
// ran dry, which is not an error — an empty book is a valid market
// state, not a fault.
func (r *Registry) SubmitMarket(symbol string, side engine.Side, qty engine.Quantity) (*OrderMeta, []ReportedTrade, error) {
	if qty == 0 {
		return nil, nil, engine.ErrInvalidQuantity
	}

	e := r.bookFor(symbol)

	e.mu.Lock()
	var trades []ReportedTrade
	e.collector = &trades
	filled, err := e.book.SubmitMarket(side, qty)
	e.collector = nil
	e.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	meta := &OrderMeta{
		ClientID:  uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      Market,
		Quantity:  qty,
		Filled:    filled,
		Status:    statusFor(filled, qty),
		Submitted: time.Now(),
	}

	r.ordersMu.Lock()
	r.orders[meta.ClientID] = meta
	r.ordersMu.Unlock()

	return meta, trades, nil
}

// Cancel cancels the order identified by clientID. Cancelling an
// already-filled, already-cancelled, or unknown order returns
// ErrUnknownOrder; the underlying engine.Cancel is itself an idempotent
// no-op for ids it no longer holds.
func (r *Registry) Cancel(clientID string) (*OrderMeta, error) {
	r.ordersMu.Lock()
	meta, ok := r.orders[clientID]
	if !ok || meta.Status == Filled || meta.Status == Cancelled {
		r.ordersMu.Unlock()
		return nil, ErrUnknownOrder
	}
	prev := meta.Status
	meta.Status = Cancelled
	r.ordersMu.Unlock()

	e := r.bookFor(meta.Symbol)
	e.mu.Lock()
	before := e.book.OrderCount()
	e.book.Cancel(meta.internalID)
	removed := e.book.OrderCount() < before
	e.mu.Unlock()

	if !removed {
		// The order had already left the book (filled by later orders,
		// or a market order that never rested).
		r.ordersMu.Lock()
		meta.Status = prev
		r.ordersMu.Unlock()
		return nil, ErrUnknownOrder
	}
	return meta, nil
}

// Status returns the current harness metadata for clientID. Status and
// Filled are the values recorded when the order was submitted, or
// Cancelled after a successful Cancel; fills that a resting order
// receives from later orders are not reflected.
func (r *Registry) Status(clientID string) (*OrderMeta, error) {
	r.ordersMu.RLock()
	defer r.ordersMu.RUnlock()
	meta, ok := r.orders[clientID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	cp := *meta
	return &cp, nil
}

// Warm creates symbol's book eagerly rather than lazily on first order,
// so the first real submission never pays book-construction latency.
func (r *Registry) Warm(symbol string) {
	r.bookFor(symbol)
}

// Snapshot returns up to depth price levels per side for symbol.
func (r *Registry) Snapshot(symbol string, depth int) (bids, asks []engine.LevelView) {
	e := r.bookFor(symbol)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Snapshot(depth)
}

// Stats returns symbol's resting level counts and pool health, used by
// the harness's Prometheus gauges (see src/api).
func (r *Registry) Stats(symbol string) (bidLevels, askLevels int, orders, levels pool.Stats) {
	e := r.bookFor(symbol)
	e.mu.RLock()
	defer e.mu.RUnlock()
	bidLevels, askLevels = e.book.LevelCounts()
	orders, levels = e.book.PoolStats()
	return bidLevels, askLevels, orders, levels
}

func sumFilled(trades []ReportedTrade) engine.Quantity {
	var total engine.Quantity
	for _, t := range trades {
		total += t.Quantity
	}
	return total
}

func statusFor(filled, requested engine.Quantity) Status {
	switch {
	case filled == 0:
		return Accepted
	case filled < requested:
		return PartialFill
	default:
		return Filled
	}
}
