package features

import (
	"math"
	"testing"
	"time"

	"github.com/autobot/engine/internal/domain"
)

func makeBars(closes []float64) []domain.OHLCVBar {
	bars := make([]domain.OHLCVBar, len(closes))
	t := time.Now().Add(-time.Duration(len(closes)) * time.Minute)
	for i, c := range closes {
		bars[i] = domain.OHLCVBar{
			OpenTime: t.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   100,
			Closed:   true,
		}
	}
	return bars
}

func TestNotReadyBelowSeedWindow(t *testing.T) {
	e := New()
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	e.Seed("BTCUSDT", makeBars(closes))

	snap := e.Snapshot("BTCUSDT")
	if snap.Ready {
		t.Fatalf("expected not-ready snapshot with only 50 seed bars")
	}
}

func TestReadyAfterSufficientSeedBars(t *testing.T) {
	e := New()
	closes := make([]float64, 600)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.1
	}
	e.Seed("BTCUSDT", makeBars(closes))

	snap := e.Snapshot("BTCUSDT")
	if !snap.Ready {
		t.Fatalf("expected ready snapshot with 600 seed bars")
	}
	if snap.RSI <= 0 || snap.RSI > 100 {
		t.Fatalf("RSI out of range: %v", snap.RSI)
	}
	if snap.ADX < 0 || snap.ADX > 100 {
		t.Fatalf("ADX out of range: %v", snap.ADX)
	}
}

func TestFallbacksOnInsufficientHistory(t *testing.T) {
	e := New()
	e.Seed("ETHUSDT", makeBars([]float64{100, 101}))

	snap := e.Snapshot("ETHUSDT")
	if snap.RSI != 50 {
		t.Fatalf("expected RSI fallback of 50, got %v", snap.RSI)
	}
	if snap.ADX != 20 {
		t.Fatalf("expected ADX fallback of 20, got %v", snap.ADX)
	}
}

func TestOnTickDoesNotChangeRingLengthForOpenBar(t *testing.T) {
	e := New()
	closes := make([]float64, 600)
	for i := range closes {
		closes[i] = 100
	}
	bars := makeBars(closes)
	bars[len(bars)-1].Closed = false
	e.Seed("BTCUSDT", bars)

	before := len(e.state("BTCUSDT").bars)
	e.OnTick("BTCUSDT", 105)
	after := len(e.state("BTCUSDT").bars)

	if before != after {
		t.Fatalf("expected ring length unchanged on tick, before=%d after=%d", before, after)
	}
}

func TestAllNumericsFinite(t *testing.T) {
	e := New()
	closes := make([]float64, 600)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)*0.1)
	}
	e.Seed("BTCUSDT", makeBars(closes))
	snap := e.Snapshot("BTCUSDT")

	vals := []float64{snap.Close, snap.High20, snap.Low20, snap.RSI, snap.ADX, snap.ATR, snap.EMA20, snap.EMA50, snap.BBUpper, snap.BBMid, snap.BBLower, snap.StochK, snap.StochD, snap.VolumeSMA}
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("field %d is not finite: %v", i, v)
		}
	}
}
