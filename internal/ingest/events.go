// Package ingest implements stream ingest (C4): sharded WebSocket
// connections to the futures market-data streams, normalization into
// MarketDataEvent, liveness/latency tracking, and event validation.
// Grounded on the teacher's kline_subscription_manager.go for batch
// sharding and user_data_stream.go for the dial/reconnect/ping-pong
// connection-management idiom.
package ingest

import "time"

// EventKind discriminates a MarketDataEvent's payload.
type EventKind string

const (
	KindKline       EventKind = "KLINE"
	KindBookTicker  EventKind = "BOOK_TICKER"
)

// MarketDataEvent is a normalized observation handed to registered
// handlers. Ephemeral: consumed by the orchestrator and dropped.
type MarketDataEvent struct {
	Symbol     string
	Kind       EventKind
	ExchangeTS time.Time
	ReceivedTS time.Time
	LatencyMS  int64

	// Kline fields, populated when Kind == KindKline.
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	IsClosed bool

	// Book-ticker fields, populated when Kind == KindBookTicker.
	BestBid float64
	BestAsk float64
	BidQty  float64
	AskQty  float64
}

// MidPrice returns the book-ticker mid price.
func (e MarketDataEvent) MidPrice() float64 {
	return (e.BestBid + e.BestAsk) / 2
}

// Handler consumes events from one shard. Handlers are invoked in arrival
// order per connection with no ordering guarantee across shards, and must
// not block beyond event-local work.
type Handler func(MarketDataEvent)

// wire payload shapes for the combined-stream envelope and per-stream data,
// mirroring the teacher's compact Binance field-name JSON tags.
type combinedStreamMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Kline     *struct {
			StartTime int64   `json:"t"`
			Open      string  `json:"o"`
			High      string  `json:"h"`
			Low       string  `json:"l"`
			Close     string  `json:"c"`
			Volume    string  `json:"v"`
			IsClosed  bool    `json:"x"`
		} `json:"k,omitempty"`
		BestBid   string `json:"b,omitempty"`
		BestBidQty string `json:"B,omitempty"`
		BestAsk   string `json:"a,omitempty"`
		BestAskQty string `json:"A,omitempty"`
	} `json:"data"`
}
