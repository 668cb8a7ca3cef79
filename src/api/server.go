// Package api exposes a registry.Registry over HTTP and websockets: a
// REST surface for order entry, cancellation, status, and book
// snapshots, a streaming trade feed, and a Prometheus scrape endpoint.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"matchbook/src/engine"
	"matchbook/src/registry"
)

// Server adapts a registry.Registry into an http.Handler.
type Server struct {
	reg          *registry.Registry
	metrics      *Metrics
	feed         *tradeFeed
	log          zerolog.Logger
	mux          *http.ServeMux
	defaultDepth int
}

// NewServer builds a Server around reg, registering Prometheus
// collectors against promReg and logging through log. Pass s.Observe as
// the registry.TradeObserver when constructing reg so trades reach this
// server's metrics and websocket feed. defaultDepth is used by
// /orderbook when the caller omits the depth query parameter.
func NewServer(reg *registry.Registry, promReg *prometheus.Registry, log zerolog.Logger, defaultDepth int) *Server {
	s := &Server{
		reg:          reg,
		metrics:      NewMetrics(promReg),
		feed:         newTradeFeed(),
		log:          log,
		mux:          http.NewServeMux(),
		defaultDepth: defaultDepth,
	}
	s.registerRoutes(promReg)
	return s
}

// Observe is the registry.TradeObserver to pass to registry.New so that
// every trade reaches this server's logs, metrics, and websocket feed.
func (s *Server) Observe(symbol string, report registry.ReportedTrade) {
	s.log.Info().
		Str("reportId", report.ReportID.String()).
		Uint64("maker", uint64(report.MakerId)).
		Uint64("taker", uint64(report.TakerId)).
		Int64("price", int64(report.Price)).
		Uint32("qty", uint32(report.Quantity)).
		Str("aggressor", report.Aggressor.String()).
		Msg("trade")
	s.metrics.ObserveTrade(symbol, report.TradeReport)
	s.feed.publish(symbol, report)
}

// ServeHTTP allows Server to satisfy http.Handler, delegating to its mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes(promReg *prometheus.Registry) {
	s.mux.Handle("/orders", s.withLogging(http.HandlerFunc(s.handleOrders)))
	s.mux.Handle("/orders/", s.withLogging(http.HandlerFunc(s.handleOrderByID)))
	s.mux.Handle("/orderbook", s.withLogging(http.HandlerFunc(s.handleOrderBook)))
	// Not wrapped in withLogging: statusWriter is not an http.Hijacker,
	// and the websocket upgrade needs one.
	s.mux.HandleFunc("/ws/trades", s.feed.ServeWS)
	s.mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// withLogging records method, path, status, and latency for every
// request handled by next.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type createOrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type createOrderResponse struct {
	Order  *registry.OrderMeta      `json:"order,omitempty"`
	Trades []registry.ReportedTrade `json:"trades,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createOrder(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		http.Error(w, "quantity must be > 0", http.StatusBadRequest)
		return
	}
	otype, err := parseOrderType(req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if otype == registry.Limit && req.Price <= 0 {
		http.Error(w, "price must be > 0 for limit orders", http.StatusBadRequest)
		return
	}

	s.metrics.ObserveSubmit(req.Symbol, side)

	var meta *registry.OrderMeta
	var trades []registry.ReportedTrade
	if otype == registry.Market {
		meta, trades, err = s.reg.SubmitMarket(req.Symbol, side, engine.Quantity(req.Quantity))
	} else {
		meta, trades, err = s.reg.SubmitLimit(req.Symbol, side, engine.Price(req.Price), engine.Quantity(req.Quantity))
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, createOrderResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, createOrderResponse{Order: meta, Trades: trades})
}

func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/orders/")
	if id == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getOrder(w, id)
	case http.MethodDelete:
		s.cancelOrder(w, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getOrder(w http.ResponseWriter, id string) {
	meta, err := s.reg.Status(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) cancelOrder(w http.ResponseWriter, id string) {
	meta, err := s.reg.Cancel(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type orderBookResponse struct {
	Bids []engine.LevelView `json:"bids"`
	Asks []engine.LevelView `json:"asks"`
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	depth := s.defaultDepth
	if depthParam := r.URL.Query().Get("depth"); depthParam != "" {
		v, err := strconv.Atoi(depthParam)
		if err != nil || v < 0 {
			http.Error(w, "invalid depth", http.StatusBadRequest)
			return
		}
		depth = v
	}
	bids, asks := s.reg.Snapshot(symbol, depth)

	bidLevels, askLevels, orderStats, levelStats := s.reg.Stats(symbol)
	s.metrics.ObserveBook(symbol, bidLevels, askLevels, orderStats, levelStats)

	writeJSON(w, http.StatusOK, orderBookResponse{Bids: bids, Asks: asks})
}

func parseSide(v string) (engine.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY":
		return engine.Buy, nil
	case "SELL":
		return engine.Sell, nil
	default:
		return 0, errors.New("invalid side; must be BUY or SELL")
	}
}

func parseOrderType(v string) (registry.OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "LIMIT":
		return registry.Limit, nil
	case "MARKET":
		return registry.Market, nil
	default:
		return 0, errors.New("invalid type; must be LIMIT or MARKET")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
