package audit

import "testing"

func TestRecordRetainsMostRecentEvents(t *testing.T) {
	l := New()
	l.Record(Event{Symbol: "BTCUSDT", OrderRole: "entry", Type: EventPlaced, Price: 100})
	l.Record(Event{Symbol: "BTCUSDT", OrderRole: "stop", Type: EventPlaced, Price: 95})

	recent := l.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recent))
	}
	if recent[0].OrderRole != "stop" {
		t.Fatalf("expected most recent event to be the stop placement, got %q", recent[0].OrderRole)
	}
}

func TestRecentCapsAtAvailableEventCount(t *testing.T) {
	l := New()
	l.Record(Event{Symbol: "ETHUSDT", OrderRole: "entry", Type: EventPlaced})

	if got := len(l.Recent(50)); got != 1 {
		t.Fatalf("expected Recent to cap at the number of events actually recorded, got %d", got)
	}
}

func TestRecordFillsZeroTimestamp(t *testing.T) {
	l := New()
	l.Record(Event{Symbol: "BTCUSDT", OrderRole: "close", Type: EventClosed})

	recent := l.Recent(1)
	if recent[0].Timestamp.IsZero() {
		t.Fatalf("expected Record to stamp a missing timestamp")
	}
}
