package notifier

import (
	"testing"
	"time"
)

type recordingNotifier struct {
	sent []*Notification
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(n *Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func TestManagerDeduplicatesCriticalWithinLatch(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager()
	m.Register(rec)

	for i := 0; i < 5; i++ {
		if err := m.Send(Critical("exchange down", "connection refused", nil)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	if len(rec.sent) != 1 {
		t.Fatalf("expected exactly 1 delivered CRITICAL notification, got %d", len(rec.sent))
	}
}

func TestManagerAllowsDistinctTitles(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager()
	// The default CRITICAL limit of 1 per 10 minutes would drop the second
	// send whatever its title; raise it so only the dedupe latch is tested.
	m.limits = map[Priority]rateLimit{
		PriorityCritical: {Limit: 2, Window: 10 * time.Minute, Dedupe: 24 * time.Hour},
	}
	m.Register(rec)

	m.Send(Critical("fault A", "msg", nil))
	m.Send(Critical("fault B", "msg", nil))

	if len(rec.sent) != 2 {
		t.Fatalf("expected 2 delivered notifications for distinct titles, got %d", len(rec.sent))
	}
}

func TestManagerEnforcesWindowLimit(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager()
	m.Register(rec)

	for i := 0; i < 100; i++ {
		m.Send(Info("tick", "heartbeat", map[string]interface{}{"i": i}))
	}

	if len(rec.sent) != defaultLimits[PriorityInfo].Limit {
		t.Fatalf("expected INFO delivery capped at %d, got %d", defaultLimits[PriorityInfo].Limit, len(rec.sent))
	}
}
