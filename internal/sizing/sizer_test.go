package sizing

import "testing"

func defaultParams() Params {
	return Params{
		RiskPerTradePct: 0.01,
		ATRMultiplier:   2.0,
		MaxPositionUSDT: 5000,
		MinQuantityUSDT: 10,
	}
}

func TestSizeHappyPath(t *testing.T) {
	r := Size(defaultParams(), 10000000, 50000, 500)
	if !r.Valid {
		t.Fatalf("expected valid result, got %+v", r)
	}
	// risk_amount = 100000, stop_distance = 1000, position_value = 100 -> above min 10, below max 5000
	if r.PositionUSDT <= 0 || r.Quantity <= 0 {
		t.Fatalf("expected positive sizing, got %+v", r)
	}
}

func TestSizeATRZeroFallsBackToPricePercent(t *testing.T) {
	// atr_effective = price * 0.005 = 250; stop_distance = 500
	// risk_amount = 1,000,000; position_value = 2000 -> above min_quantity_usdt, below max
	p := defaultParams()
	p.MaxPositionUSDT = 0
	r := Size(p, 100000000, 50000, 0)
	if !r.Valid {
		t.Fatalf("expected valid result with atr=0 fallback, got %+v", r)
	}
}

func TestSizeRejectsBelowMinQuantity(t *testing.T) {
	p := defaultParams()
	p.MinQuantityUSDT = 1000
	r := Size(p, 100, 50000, 500)
	if r.Valid {
		t.Fatalf("expected rejection below min_quantity_usdt, got %+v", r)
	}
}

func TestSizeCapsAtMaxPositionUSDT(t *testing.T) {
	p := defaultParams()
	p.MaxPositionUSDT = 50
	// risk_amount = 1,000,000; atr_effective = 250; stop_distance = 500;
	// position_value = 2000 -> capped at 50
	r := Size(p, 100000000, 50000, 100)
	if !r.Valid {
		t.Fatalf("expected valid capped result, got %+v", r)
	}
	if r.PositionUSDT > p.MaxPositionUSDT {
		t.Fatalf("expected position value capped at %v, got %v", p.MaxPositionUSDT, r.PositionUSDT)
	}
}

func TestSizeRejectsNonPositiveEquity(t *testing.T) {
	r := Size(defaultParams(), 0, 50000, 500)
	if r.Valid {
		t.Fatalf("expected rejection for zero equity, got %+v", r)
	}
}

func TestSizeRejectsNonPositivePrice(t *testing.T) {
	r := Size(defaultParams(), 10000, 0, 500)
	if r.Valid {
		t.Fatalf("expected rejection for zero price, got %+v", r)
	}
}
