package alert

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type notifierSpy struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notifierSpy) Notify(ctx context.Context, msg string) error {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	return nil
}

func (n *notifierSpy) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func TestManagerDeliversQueuedEvents(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager(spy)

	m.Important("gateway_failure", map[string]string{
		"market": "Poloniex",
		"coin":   "XMR",
		"op":     "place_limit_buy",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	msgs := spy.all()
	if len(msgs) != 1 {
		t.Fatalf("delivered = %d messages, want 1", len(msgs))
	}
	if !strings.HasPrefix(msgs[0], "[gateway_failure]") {
		t.Fatalf("message = %q, want [gateway_failure] prefix", msgs[0])
	}
	// Fields render sorted so messages are stable.
	if !strings.Contains(msgs[0], "coin=XMR market=Poloniex op=place_limit_buy") {
		t.Fatalf("message = %q, want sorted fields", msgs[0])
	}
}

func TestManagerNilReceiverIsSafe(t *testing.T) {
	var m *Manager
	m.Important("anything", nil)
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close() on nil = %v, want nil", err)
	}
}

func TestNewManagerNilNotifier(t *testing.T) {
	if m := NewManager(nil); m != nil {
		t.Fatalf("NewManager(nil) = %v, want nil", m)
	}
}

func TestImportantAfterCloseIsDropped(t *testing.T) {
	spy := &notifierSpy{}
	m := NewManager(spy)
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	m.Important("late", nil)
	if got := len(spy.all()); got != 0 {
		t.Fatalf("delivered = %d messages after close, want 0", got)
	}
}
