package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"matchbook/src/registry"
)

// feedEvent is the JSON frame pushed to every connected trade-feed
// client.
type feedEvent struct {
	Symbol    string                 `json:"symbol"`
	Report    registry.ReportedTrade `json:"report"`
	Timestamp time.Time              `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	feedBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// tradeFeed fans a single stream of trade events out to any number of
// websocket subscribers. It exists precisely because the engine's
// TradeSink must never re-enter the Book: every report lands on a
// buffered channel here and is drained by a dedicated goroutine per
// client, entirely outside the book's single-threaded call stack.
type tradeFeed struct {
	mu      sync.Mutex
	clients map[chan feedEvent]struct{}
}

func newTradeFeed() *tradeFeed {
	return &tradeFeed{clients: make(map[chan feedEvent]struct{})}
}

// publish is the TradeObserver hook wired into the registry. It must
// never block: a slow or absent reader drops its own events rather than
// stalling the matching engine.
func (f *tradeFeed) publish(symbol string, report registry.ReportedTrade) {
	evt := feedEvent{Symbol: symbol, Report: report, Timestamp: time.Now()}
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.clients {
		select {
		case ch <- evt:
		default:
			// Slow consumer; drop this event rather than block matching.
		}
	}
}

func (f *tradeFeed) subscribe() chan feedEvent {
	ch := make(chan feedEvent, feedBufferSize)
	f.mu.Lock()
	f.clients[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *tradeFeed) unsubscribe(ch chan feedEvent) {
	f.mu.Lock()
	delete(f.clients, ch)
	f.mu.Unlock()
	close(ch)
}

// ServeWS upgrades the request to a websocket connection and streams
// trade events as JSON frames until the client disconnects.
func (f *tradeFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := f.subscribe()
	defer f.unsubscribe(ch)

	for evt := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
}
