package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autobot/engine/internal/logging"
	"github.com/autobot/engine/internal/metrics"
)

// Config controls sharding, reconnection, keepalive and health behavior.
type Config struct {
	BaseURL                 string
	Timeframe               string
	MaxSymbolsPerConnection int
	MaxReconnectAttempts    int
	BackoffBase             time.Duration
	BackoffCap              time.Duration
	PingInterval            time.Duration
	PongTimeout             time.Duration
	HealthCheckInterval     time.Duration
	AggregateSilenceWarn    time.Duration
	DataLossTimeout         time.Duration
	TimestampTolerance      time.Duration
}

// DefaultConfig returns spec-default ingest tuning.
func DefaultConfig(baseURL, timeframe string) Config {
	return Config{
		BaseURL:                 baseURL,
		Timeframe:               timeframe,
		MaxSymbolsPerConnection: 100,
		MaxReconnectAttempts:    20,
		BackoffBase:             1 * time.Second,
		BackoffCap:              60 * time.Second,
		PingInterval:            30 * time.Second,
		PongTimeout:             20 * time.Second,
		HealthCheckInterval:     30 * time.Second,
		AggregateSilenceWarn:    60 * time.Second,
		DataLossTimeout:         30 * time.Second,
		TimestampTolerance:      2 * time.Second,
	}
}

// Manager shards a symbol set across disjoint WebSocket connections,
// normalizes incoming frames into MarketDataEvent, and fans them out to
// registered handlers after validation.
type Manager struct {
	cfg       Config
	validator *Validator
	latency   *LatencyRing
	log       *logging.Logger
	metrics   *metrics.Registry

	mu       sync.RWMutex
	handlers []Handler
	shards   []*shard

	lastGlobalMessage atomic.Int64 // unix nano
}

// New creates an ingest manager for the given symbol universe. metrics may
// be nil, in which case instrumentation is skipped.
func New(cfg Config, symbols []string, m *metrics.Registry) *Manager {
	mgr := &Manager{
		cfg:       cfg,
		validator: DefaultValidator(cfg.TimestampTolerance),
		latency:   NewLatencyRing(1000),
		log:       logging.WithComponent("ingest"),
		metrics:   m,
	}
	mgr.lastGlobalMessage.Store(time.Now().UnixNano())

	for _, batch := range batchSymbols(symbols, cfg.MaxSymbolsPerConnection) {
		mgr.shards = append(mgr.shards, &shard{
			symbols:  batch,
			cfg:      cfg,
			manager:  mgr,
			stopCh:   make(chan struct{}),
			lastSeen: make(map[string]time.Time),
		})
	}
	return mgr
}

func batchSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 100
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[i:end])
	}
	return batches
}

// OnEvent registers a handler invoked for every validated event. Handlers
// are invoked in arrival order per shard; no ordering guarantee across
// shards.
func (m *Manager) OnEvent(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Start dials every shard's connection concurrently and begins the health
// check loop. Returns once all shards have started their connect loops.
func (m *Manager) Start() {
	for _, s := range m.shards {
		go s.run()
	}
	go m.healthLoop()
}

// Stop tears down every shard connection.
func (m *Manager) Stop() {
	for _, s := range m.shards {
		s.stop()
	}
}

// LatencyStats returns the current aggregate latency percentile summary.
func (m *Manager) LatencyStats() LatencyStats {
	return m.latency.Stats()
}

// RejectedCount returns how many events the validator has dropped.
func (m *Manager) RejectedCount() int64 {
	return m.validator.Rejected()
}

func (m *Manager) dispatch(e MarketDataEvent) {
	now := time.Now()
	if err := m.validator.Validate(now, e); err != nil {
		m.log.WithField("symbol", e.Symbol).Warn("dropping invalid market data event: %v", err)
		if m.metrics != nil {
			m.metrics.EventsRejected.WithLabelValues(e.Symbol, "validation").Inc()
		}
		return
	}

	e.LatencyMS = e.ReceivedTS.Sub(e.ExchangeTS).Milliseconds()
	m.latency.Observe(e.LatencyMS)
	m.lastGlobalMessage.Store(now.UnixNano())
	if m.metrics != nil {
		m.metrics.EventsIngested.WithLabelValues(e.Symbol, string(e.Kind)).Inc()
		m.metrics.IngestLatencyMS.Observe(float64(e.LatencyMS))
	}

	m.mu.RLock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// healthLoop runs the spec's periodic liveness check: a warning when the
// aggregate stream has been silent too long, and a critical alert per
// symbol silent longer than DataLossTimeout.
func (m *Manager) healthLoop() {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for range ticker.C {
		lastGlobal := time.Unix(0, m.lastGlobalMessage.Load())
		if silence := time.Since(lastGlobal); silence > m.cfg.AggregateSilenceWarn {
			m.log.Warn("no market data received for %s across all shards", silence.Round(time.Second))
		}

		for _, s := range m.shards {
			s.checkSymbolSilence(m.cfg.DataLossTimeout, m.log)
		}
	}
}

// shard owns one physical WebSocket connection carrying the kline and
// book-ticker streams for a disjoint batch of symbols.
type shard struct {
	symbols []string
	cfg     Config
	manager *Manager
	log     *logging.Logger

	stopCh  chan struct{}
	stopped atomic.Bool

	mu       sync.Mutex
	conn     *websocket.Conn
	lastSeen map[string]time.Time
}

// id identifies a shard for metric labels by its first symbol, since
// shards are disjoint batches carved off the configured symbol universe.
func (s *shard) id() string {
	if len(s.symbols) == 0 {
		return "unknown"
	}
	return s.symbols[0]
}

func (s *shard) streamURL() string {
	var parts []string
	for _, sym := range s.symbols {
		lower := strings.ToLower(sym)
		parts = append(parts, fmt.Sprintf("%s@kline_%s", lower, s.cfg.Timeframe))
		parts = append(parts, lower+"@bookTicker")
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.cfg.BaseURL, strings.Join(parts, "/"))
}

func (s *shard) run() {
	log := s.manager.log.WithField("shard_symbols", len(s.symbols))
	attempt := 0

	for {
		if s.stopped.Load() {
			return
		}

		if s.cfg.MaxReconnectAttempts > 0 && attempt >= s.cfg.MaxReconnectAttempts {
			log.Error("exceeded max reconnect attempts, giving up on shard")
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.streamURL(), nil)
		if err != nil {
			attempt++
			if s.manager.metrics != nil {
				s.manager.metrics.ReconnectsTotal.WithLabelValues(s.id()).Inc()
			}
			delay := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffCap, attempt)
			log.WithError(err).Warn("shard dial failed, retrying in %s", delay)
			if !s.sleep(delay) {
				return
			}
			continue
		}

		attempt = 0
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		log.Info("shard connected")

		s.pumpUntilClosed(conn)

		if s.stopped.Load() {
			return
		}
		log.Warn("shard connection lost, reconnecting")
	}
}

func (s *shard) sleep(d time.Duration) bool {
	select {
	case <-s.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(float64(base) * math.Pow(1.5, float64(attempt)))
	if cap > 0 && delay > cap {
		delay = cap
	}
	return delay
}

// pumpUntilClosed runs the ping/pong keepalive and read loop until the
// connection closes or the shard is stopped.
func (s *shard) pumpUntilClosed(conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval + s.cfg.PongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingInterval + s.cfg.PongTimeout))

	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.PongTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(message)
	}
}

func (s *shard) handleMessage(message []byte) {
	var env combinedStreamMessage
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}

	received := time.Now()
	exchangeTS := time.UnixMilli(env.Data.EventTime)

	var event MarketDataEvent
	switch {
	case strings.Contains(env.Stream, "@kline_"):
		if env.Data.Kline == nil {
			return
		}
		k := env.Data.Kline
		event = MarketDataEvent{
			Symbol:     env.Data.Symbol,
			Kind:       KindKline,
			ExchangeTS: exchangeTS,
			ReceivedTS: received,
			Open:       parseFloat(k.Open),
			High:       parseFloat(k.High),
			Low:        parseFloat(k.Low),
			Close:      parseFloat(k.Close),
			Volume:     parseFloat(k.Volume),
			IsClosed:   k.IsClosed,
		}
	case strings.Contains(env.Stream, "@bookTicker"):
		event = MarketDataEvent{
			Symbol:     env.Data.Symbol,
			Kind:       KindBookTicker,
			ExchangeTS: exchangeTS,
			ReceivedTS: received,
			BestBid:    parseFloat(env.Data.BestBid),
			BestAsk:    parseFloat(env.Data.BestAsk),
			BidQty:     parseFloat(env.Data.BestBidQty),
			AskQty:     parseFloat(env.Data.BestAskQty),
		}
	default:
		return
	}

	s.mu.Lock()
	s.lastSeen[event.Symbol] = received
	s.mu.Unlock()

	s.manager.dispatch(event)
}

func (s *shard) checkSymbolSilence(timeout time.Duration, log *logging.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, sym := range s.symbols {
		last, ok := s.lastSeen[sym]
		if !ok {
			continue
		}
		if silence := now.Sub(last); silence > timeout {
			log.WithField("symbol", sym).Error("no market data for %s, exceeds data loss timeout", silence.Round(time.Second))
		}
	}
}

func (s *shard) stop() {
	if s.stopped.Swap(true) {
		return
	}
	close(s.stopCh)
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
