package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "alert")

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Alerter is what the engines hold. Important never blocks a trading
// operation on notification delivery.
type Alerter interface {
	Important(event string, fields map[string]string)
}

const (
	defaultQueueSize = 64
	notifyTimeout    = 10 * time.Second
)

// Manager queues important events and delivers them to a notifier in the
// background. A full queue drops the event with a log line rather than
// stalling the caller.
type Manager struct {
	notifier Notifier
	queue    chan event
	stop     chan struct{}
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

type event struct {
	name   string
	fields map[string]string
}

func NewManager(notifier Notifier) *Manager {
	if notifier == nil {
		return nil
	}
	m := &Manager{
		notifier: notifier,
		queue:    make(chan event, defaultQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) Important(name string, fields map[string]string) {
	if m == nil {
		return
	}
	ev := event{name: name, fields: cloneFields(fields)}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		log.WithField("event", name).Warn("alert queue full, event dropped")
	}
}

// Close drains the queue, delivering what it can before returning.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, formatMessage(ev)); err != nil {
		log.WithField("event", ev.name).WithError(err).Warn("alert delivery failed")
	}
}

func formatMessage(ev event) string {
	var b strings.Builder
	b.WriteString("[" + ev.name + "]")
	keys := make([]string, 0, len(ev.fields))
	for k := range ev.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + ev.fields[k])
	}
	return b.String()
}

func cloneFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
