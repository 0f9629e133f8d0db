package ingest

import (
	"testing"
	"time"
)

func TestBatchSymbolsSplitsIntoShardsOfSize(t *testing.T) {
	symbols := make([]string, 250)
	for i := range symbols {
		symbols[i] = "SYM"
	}
	batches := batchSymbols(symbols, 100)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 100 || len(batches[1]) != 100 || len(batches[2]) != 50 {
		t.Fatalf("unexpected batch sizes: %v %v %v", len(batches[0]), len(batches[1]), len(batches[2]))
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	d := backoffDelay(time.Second, 60*time.Second, 50)
	if d != 60*time.Second {
		t.Fatalf("expected capped delay of 60s, got %s", d)
	}
}

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	d1 := backoffDelay(time.Second, 60*time.Second, 1)
	d2 := backoffDelay(time.Second, 60*time.Second, 2)
	if d2 <= d1 {
		t.Fatalf("expected increasing backoff, got %s then %s", d1, d2)
	}
}

func TestValidatorRejectsHighLessThanLow(t *testing.T) {
	v := DefaultValidator(2 * time.Second)
	now := time.Now()
	e := MarketDataEvent{Symbol: "BTCUSDT", Kind: KindKline, ExchangeTS: now, ReceivedTS: now, Open: 10, Close: 10, High: 5, Low: 20}
	if err := v.Validate(now, e); err == nil {
		t.Fatalf("expected rejection for high < low")
	}
}

func TestValidatorRejectsCloseOutsideRange(t *testing.T) {
	v := DefaultValidator(2 * time.Second)
	now := time.Now()
	e := MarketDataEvent{Symbol: "BTCUSDT", Kind: KindKline, ExchangeTS: now, ReceivedTS: now, Open: 10, Close: 100, High: 20, Low: 5}
	if err := v.Validate(now, e); err == nil {
		t.Fatalf("expected rejection for close outside [low, high]")
	}
}

func TestValidatorRejectsLargePriceJump(t *testing.T) {
	v := DefaultValidator(2 * time.Second)
	now := time.Now()
	base := MarketDataEvent{Symbol: "BTCUSDT", Kind: KindKline, ExchangeTS: now, ReceivedTS: now, Open: 100, Close: 100, High: 100, Low: 100}
	if err := v.Validate(now, base); err != nil {
		t.Fatalf("unexpected rejection on seed event: %v", err)
	}

	jump := base
	jump.Open, jump.Close, jump.High, jump.Low = 150, 150, 150, 150
	if err := v.Validate(now, jump); err == nil {
		t.Fatalf("expected rejection for 50%% price jump")
	}
}

func TestValidatorRejectsStaleTimestamp(t *testing.T) {
	v := DefaultValidator(2 * time.Second)
	now := time.Now()
	stale := MarketDataEvent{Symbol: "ETHUSDT", Kind: KindKline, ExchangeTS: now.Add(-90 * time.Second), ReceivedTS: now, Open: 10, Close: 10, High: 10, Low: 10}
	if err := v.Validate(now, stale); err == nil {
		t.Fatalf("expected rejection for timestamp skew beyond wall-clock tolerance")
	}
}

func TestValidatorIgnoresBookTickerEvents(t *testing.T) {
	v := DefaultValidator(2 * time.Second)
	now := time.Now()
	e := MarketDataEvent{Symbol: "BTCUSDT", Kind: KindBookTicker, ExchangeTS: now, ReceivedTS: now, BestBid: 100, BestAsk: 101}
	if err := v.Validate(now, e); err != nil {
		t.Fatalf("book-ticker events should never be rejected by the kline validator: %v", err)
	}
}

func TestLatencyRingComputesPercentiles(t *testing.T) {
	r := NewLatencyRing(10)
	for i := int64(1); i <= 10; i++ {
		r.Observe(i * 10)
	}
	stats := r.Stats()
	if stats.Max != 100 {
		t.Fatalf("expected max 100, got %d", stats.Max)
	}
	if stats.Samples != 10 {
		t.Fatalf("expected 10 samples, got %d", stats.Samples)
	}
}

func TestLatencyRingWrapsAtCapacity(t *testing.T) {
	r := NewLatencyRing(3)
	r.Observe(1)
	r.Observe(2)
	r.Observe(3)
	r.Observe(4) // wraps, overwrites the 1
	stats := r.Stats()
	if stats.Samples != 3 {
		t.Fatalf("expected ring to stay at capacity 3, got %d", stats.Samples)
	}
}

func TestStreamURLIncludesKlineAndBookTicker(t *testing.T) {
	s := &shard{symbols: []string{"BTCUSDT"}, cfg: Config{BaseURL: "wss://fstream.binance.com", Timeframe: "5m"}}
	url := s.streamURL()
	if url != "wss://fstream.binance.com/stream?streams=btcusdt@kline_5m/btcusdt@bookTicker" {
		t.Fatalf("unexpected stream url: %s", url)
	}
}
