package events

import (
	"sync"
	"time"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warning"
	SeverityError Severity = "error"
)

// Event is one node-scoped log entry surfaced to the dashboard.
type Event struct {
	Time     time.Time `json:"time"`
	Identity string    `json:"identity,omitempty"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Log is a fixed-capacity ring of recent events. Oldest entries are
// overwritten once capacity is reached.
type Log struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	count int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{buf: make([]Event, capacity)}
}

func (l *Log) Append(identity string, severity Severity, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = Event{
		Time:     time.Now().UTC(),
		Identity: identity,
		Severity: severity,
		Message:  message,
	}
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// Recent returns up to limit events, newest first. limit <= 0 returns
// everything retained.
func (l *Log) Recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > l.count {
		limit = l.count
	}

	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}
