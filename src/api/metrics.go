package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"matchbook/src/engine"
	"matchbook/src/pool"
)

// Metrics is the Prometheus collector set for the matching engine
// harness. Modeled on the *Collector pattern used across the pack's
// larger trading systems, scaled down to what this engine actually
// reports: orders/trades throughput and pool health.
type Metrics struct {
	OrdersTotal  *prometheus.CounterVec
	TradesTotal  *prometheus.CounterVec
	TradeVolume  *prometheus.CounterVec
	BookDepth    *prometheus.GaugeVec
	PoolInUse    *prometheus.GaugeVec
	PoolMisses   *prometheus.GaugeVec
}

// NewMetrics builds and registers a fresh Metrics set against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lob_orders_total",
			Help: "Orders submitted, by symbol and side.",
		}, []string{"symbol", "side"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lob_trades_total",
			Help: "Trades executed, by symbol.",
		}, []string{"symbol"}),
		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lob_trade_volume_total",
			Help: "Cumulative traded quantity, by symbol.",
		}, []string{"symbol"}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lob_book_depth",
			Help: "Number of resting price levels, by symbol and side.",
		}, []string{"symbol", "side"}),
		PoolInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lob_pool_in_use",
			Help: "Slots currently checked out of a pool, by symbol and pool type.",
		}, []string{"symbol", "pool"}),
		PoolMisses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lob_pool_misses_total",
			Help: "Cumulative acquire calls that had to grow the pool, by symbol and pool type.",
		}, []string{"symbol", "pool"}),
	}

	reg.MustRegister(m.OrdersTotal, m.TradesTotal, m.TradeVolume, m.BookDepth, m.PoolInUse, m.PoolMisses)
	return m
}

// ObserveTrade updates the trade-facing counters for one report.
func (m *Metrics) ObserveTrade(symbol string, report engine.TradeReport) {
	m.TradesTotal.WithLabelValues(symbol).Inc()
	m.TradeVolume.WithLabelValues(symbol).Add(float64(report.Quantity))
}

// ObserveSubmit increments the per-side order counter.
func (m *Metrics) ObserveSubmit(symbol string, side engine.Side) {
	m.OrdersTotal.WithLabelValues(symbol, side.String()).Inc()
}

// ObserveBook refreshes the depth and pool gauges for symbol from a live
// snapshot and the book's pool stats.
func (m *Metrics) ObserveBook(symbol string, bidLevels, askLevels int, orders, levels pool.Stats) {
	m.BookDepth.WithLabelValues(symbol, "bid").Set(float64(bidLevels))
	m.BookDepth.WithLabelValues(symbol, "ask").Set(float64(askLevels))
	m.PoolInUse.WithLabelValues(symbol, "order").Set(float64(orders.InUse))
	m.PoolInUse.WithLabelValues(symbol, "level").Set(float64(levels.InUse))
	m.PoolMisses.WithLabelValues(symbol, "order").Set(float64(orders.Misses))
	m.PoolMisses.WithLabelValues(symbol, "level").Set(float64(levels.Misses))
}
