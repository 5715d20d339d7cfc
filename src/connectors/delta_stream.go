// STREAMING QUOTE FEED FOR DELTA EXCHANGE INDIA OPTIONS
// GORILLA WEBSOCKET + RECONNECT BACKOFF
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	streamHandshakeTimeout = 15 * time.Second
	streamWriteWait        = 10 * time.Second
	streamPongWait         = 30 * time.Second
	streamPingPeriod       = (streamPongWait * 9) / 10
	streamInitialBackoff   = 1 * time.Second
	streamMaxBackoff       = 30 * time.Second

	tickerChannel = "v2/ticker"
)

// ErrQuoteUnavailable marks a cache miss or a stale cache. Callers fall back
// to REST snapshots; the stream itself keeps running.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// -----------------------------
// SUBSCRIBE FRAMES
// -----------------------------
type subscribeChannel struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

type subscribePayload struct {
	Channels []subscribeChannel `json:"channels"`
}

type subscribeMessage struct {
	Type    string           `json:"type"`
	Payload subscribePayload `json:"payload"`
}

// -----------------------------
// A) QUOTE STREAM
// -----------------------------

// OptionQuoteStream maintains a single websocket connection to the ticker
// channel and caches the newest quote per subscribed symbol. Accepted frames
// replace the cached quote wholesale, never merged field by field, so readers
// always see one coherent snapshot. Reconnects use a doubling backoff from
// 1s capped at 30s, reset after every successful connect. Staleness only
// empties the cache for readers; it never forces a reconnect.
type OptionQuoteStream struct {
	url       string
	staleness time.Duration

	mu          sync.RWMutex
	running     bool
	conn        *websocket.Conn
	cancel      context.CancelFunc
	symbols     map[string]struct{}
	quotes      map[string]model.Quote
	lastQuoteAt time.Time
	dropped     uint64

	resub chan struct{}
	wg    sync.WaitGroup
}

func NewOptionQuoteStream(cfg Config) *OptionQuoteStream {
	staleness := time.Duration(cfg.StreamStalenessSeconds) * time.Second
	if staleness <= 0 {
		staleness = 60 * time.Second
	}
	return &OptionQuoteStream{
		url:       cfg.DeltaWebsocketURL,
		staleness: staleness,
		symbols:   make(map[string]struct{}),
		quotes:    make(map[string]model.Quote),
		resub:     make(chan struct{}, 1),
	}
}

// Start launches the reconnect loop. Starting a running stream is a no-op.
func (s *OptionQuoteStream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop closes the connection, waits for the loop to exit and clears the
// quote cache. The subscription set survives so a later Start resumes it.
func (s *OptionQuoteStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(streamWriteWait))
		_ = conn.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.quotes = make(map[string]model.Quote)
	s.lastQuoteAt = time.Time{}
	s.mu.Unlock()
	logger.Info("Option quote stream stopped")
}

// -----------------------------
// B) SYMBOL MANAGEMENT
// -----------------------------

// SetSymbols replaces the subscription set. A change while connected triggers
// an in-place resubscribe without dropping the connection; while stopped the
// new set takes effect on the next Start.
func (s *OptionQuoteStream) SetSymbols(symbols []string) {
	next := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if key := normalizeStreamSymbol(sym); key != "" {
			next[key] = struct{}{}
		}
	}

	s.mu.Lock()
	changed := len(next) != len(s.symbols)
	if !changed {
		for key := range next {
			if _, ok := s.symbols[key]; !ok {
				changed = true
				break
			}
		}
	}
	s.symbols = next
	s.mu.Unlock()

	if changed {
		s.signalResubscribe()
	}
}

// AddSymbols unions new symbols into the subscription set.
func (s *OptionQuoteStream) AddSymbols(symbols []string) {
	s.mu.Lock()
	changed := false
	for _, sym := range symbols {
		key := normalizeStreamSymbol(sym)
		if key == "" {
			continue
		}
		if _, ok := s.symbols[key]; !ok {
			s.symbols[key] = struct{}{}
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.signalResubscribe()
	}
}

// Symbols returns the current subscription set, sorted.
func (s *OptionQuoteStream) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *OptionQuoteStream) signalResubscribe() {
	select {
	case s.resub <- struct{}{}:
	default:
	}
}

// -----------------------------
// C) CACHE ACCESS
// -----------------------------

// Quote returns the cached quote for symbol. A stale cache behaves like an
// empty one, pushing callers onto their REST fallback.
func (s *OptionQuoteStream) Quote(symbol string) (model.Quote, error) {
	key := normalizeStreamSymbol(symbol)
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.staleLocked(now) {
		return model.Quote{}, ErrQuoteUnavailable
	}
	quote, ok := s.quotes[key]
	if !ok {
		return model.Quote{}, ErrQuoteUnavailable
	}
	return quote, nil
}

// BestBidAsk returns the cached book top for symbol.
func (s *OptionQuoteStream) BestBidAsk(symbol string) (float64, float64, error) {
	quote, err := s.Quote(symbol)
	if err != nil {
		return 0, 0, err
	}
	bid, ask := quote.BestBidAsk()
	return bid, ask, nil
}

// Snapshot copies the current quote cache.
func (s *OptionQuoteStream) Snapshot() map[string]model.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Quote, len(s.quotes))
	for sym, quote := range s.quotes {
		out[sym] = quote
	}
	return out
}

// Stale reports whether no quote has been accepted within the staleness
// threshold since the last quote or connect.
func (s *OptionQuoteStream) Stale() bool {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleLocked(now)
}

// LastQuoteAt returns the receipt time of the newest accepted quote, or the
// last connect time when nothing has arrived yet.
func (s *OptionQuoteStream) LastQuoteAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastQuoteAt
}

// DroppedFrames counts frames the stream could not parse.
func (s *OptionQuoteStream) DroppedFrames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *OptionQuoteStream) staleLocked(now time.Time) bool {
	if s.lastQuoteAt.IsZero() {
		return false
	}
	return now.Sub(s.lastQuoteAt) > s.staleness
}

// -----------------------------
// D) CONNECTION LOOP
// -----------------------------
func (s *OptionQuoteStream) run(ctx context.Context) {
	defer s.wg.Done()

	dialer := websocket.Dialer{HandshakeTimeout: streamHandshakeTimeout}
	backoff := streamInitialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).WithField("url", s.url).Warn("Quote stream connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > streamMaxBackoff {
				backoff = streamMaxBackoff
			}
			continue
		}
		backoff = streamInitialBackoff

		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(streamPongWait))
			return nil
		})

		s.mu.Lock()
		s.conn = conn
		s.lastQuoteAt = time.Now()
		s.mu.Unlock()
		logger.WithField("url", s.url).Info("Quote stream connected")

		// A resubscribe queued while disconnected is covered by the
		// subscribe below.
		select {
		case <-s.resub:
		default:
		}
		s.sendSubscribe(conn)
		s.serveConn(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}
}

// serveConn pumps frames from one connection until it fails or the stream
// shuts down. Reads happen on a child goroutine so the select can also react
// to resubscribe signals and ping ticks; gorilla permits one concurrent
// reader and one concurrent writer.
func (s *OptionQuoteStream) serveConn(ctx context.Context, conn *websocket.Conn) {
	frames := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			logger.WithError(err).Warn("Quote stream read failed, reconnecting")
			return
		case raw := <-frames:
			s.handleFrame(raw)
		case <-s.resub:
			s.sendSubscribe(conn)
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.WithError(err).Warn("Quote stream ping failed, reconnecting")
				return
			}
		}
	}
}

func (s *OptionQuoteStream) sendSubscribe(conn *websocket.Conn) {
	s.mu.RLock()
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	s.mu.RUnlock()
	if len(symbols) == 0 {
		return
	}
	sort.Strings(symbols)

	msg := subscribeMessage{
		Type: "subscribe",
		Payload: subscribePayload{
			Channels: []subscribeChannel{{Name: tickerChannel, Symbols: symbols}},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		logger.WithError(err).Warn("Failed sending subscribe payload")
		return
	}
	logger.WithField("symbols", len(symbols)).Info("Subscribed to ticker channel")
}

func (s *OptionQuoteStream) handleFrame(raw []byte) {
	var frame struct {
		Type string `json:"type"`
		externalmodel.DeltaTicker
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		logger.WithError(err).Debug("Dropping unparseable stream frame")
		return
	}

	msgType := strings.ToLower(frame.Type)
	switch {
	case strings.HasPrefix(msgType, tickerChannel):
		s.storeQuote(frame.DeltaTicker, time.Now())
	case msgType == "error" || msgType == "warning":
		logger.WithField("frame", string(raw)).Warn("Quote stream service message")
	}
}

// storeQuote converts an accepted ticker frame and replaces the cache entry
// for its symbol. Book top prefers the nested quotes payload over the
// top-level best_* fields.
func (s *OptionQuoteStream) storeQuote(t externalmodel.DeltaTicker, receivedAt time.Time) {
	symbol := normalizeStreamSymbol(t.Symbol)
	if symbol == "" {
		return
	}

	bid := t.BestBidPrice.Float64()
	ask := t.BestAskPrice.Float64()
	bidSize := t.BestBidSize.Float64()
	askSize := t.BestAskSize.Float64()
	if t.Quotes != nil {
		if v := t.Quotes.BestBid.Float64(); v > 0 {
			bid = v
		}
		if v := t.Quotes.BestAsk.Float64(); v > 0 {
			ask = v
		}
		if v := t.Quotes.BidSize.Float64(); v > 0 {
			bidSize = v
		}
		if v := t.Quotes.AskSize.Float64(); v > 0 {
			askSize = v
		}
	}

	quote := model.Quote{
		Symbol:     symbol,
		MarkPrice:  t.MarkPrice.Float64(),
		LastPrice:  t.LastPrice.Float64(),
		BestBid:    bid,
		BestAsk:    ask,
		BidSize:    bidSize,
		AskSize:    askSize,
		Timestamp:  normalizeEpoch(t.Timestamp.Float64(), receivedAt),
		ReceivedAt: receivedAt,
	}

	s.mu.Lock()
	s.quotes[symbol] = quote
	s.lastQuoteAt = receivedAt
	s.mu.Unlock()
}

// normalizeEpoch interprets a raw exchange timestamp by magnitude: above
// 1e15 microseconds, above 1e12 milliseconds, otherwise seconds. Values
// that are missing or non-positive fall back to the receipt time.
func normalizeEpoch(raw float64, fallback time.Time) time.Time {
	if raw <= 0 {
		return fallback
	}
	switch {
	case raw > 1e15:
		return time.UnixMicro(int64(raw)).UTC()
	case raw > 1e12:
		return time.UnixMilli(int64(raw)).UTC()
	default:
		sec := int64(raw)
		nsec := int64((raw - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
}

func normalizeStreamSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
