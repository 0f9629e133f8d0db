package orders

import (
	"testing"

	"github.com/autobot/engine/internal/binance"
	"github.com/autobot/engine/internal/domain"
)

func mockClient() *binance.FuturesMockClient {
	return binance.NewFuturesMockClient(10000, func(symbol string) (float64, error) {
		return 50000, nil
	})
}

func TestSubmitEntryPlacesOrderAndProtectiveStop(t *testing.T) {
	m := New(mockClient(), false)
	signal := domain.TradeSignal{Symbol: "BTCUSDT", Action: domain.ActionProposeLong}

	entry, stop := m.SubmitEntry(signal, 0.01, 50000, 10, 1000)

	if !entry.Success {
		t.Fatalf("expected successful entry, got %+v", entry)
	}
	if !stop.Success {
		t.Fatalf("expected successful protective stop, got %+v", stop)
	}
}

func TestDryRunShortCircuitsNetworkCalls(t *testing.T) {
	m := New(mockClient(), true)
	signal := domain.TradeSignal{Symbol: "BTCUSDT", Action: domain.ActionProposeLong}

	entry, stop := m.SubmitEntry(signal, 0.01, 50000, 10, 1000)

	if !entry.Success || entry.ClientOrderID[:4] != "DRY_" {
		t.Fatalf("expected synthetic DRY_ entry id, got %+v", entry)
	}
	if !stop.Success || stop.ClientOrderID[:4] != "DRY_" {
		t.Fatalf("expected synthetic DRY_ stop id, got %+v", stop)
	}
}

func TestClosePositionClosesWithOppositeSide(t *testing.T) {
	m := New(mockClient(), false)
	result := m.ClosePosition("BTCUSDT", domain.SideLong, 0.01)
	if !result.Success {
		t.Fatalf("expected successful close, got %+v", result)
	}
}

func TestReconcilePositionsFiltersZeroAmount(t *testing.T) {
	client := mockClient()
	m := New(client, false)

	positions, err := m.ReconcilePositions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected no live positions on a fresh mock account, got %+v", positions)
	}
}
