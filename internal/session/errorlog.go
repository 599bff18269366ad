package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/logging"
)

const maxErrorLogEntries = 50

type ErrorLogEntry struct {
	DID   string
	Event bsky.SessionEvent
	At    time.Time
}

// AnomalyCounter is told about every logged session event.
type AnomalyCounter interface {
	SessionAnomaly(event string)
}

// ErrorLog keeps the most recent unexpected session events for diagnostics.
type ErrorLog struct {
	mu      sync.Mutex
	entries []ErrorLogEntry
	logger  logging.Logger
	counter AnomalyCounter
	clock   clockwork.Clock
}

func NewErrorLog(logger logging.Logger, counter AnomalyCounter, clock clockwork.Clock) *ErrorLog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ErrorLog{logger: logger, counter: counter, clock: clock}
}

// Add records evt for did.
func (l *ErrorLog) Add(did string, evt bsky.SessionEvent) {
	l.mu.Lock()
	l.entries = append(l.entries, ErrorLogEntry{DID: did, Event: evt, At: l.clock.Now()})
	if len(l.entries) > maxErrorLogEntries {
		l.entries = l.entries[len(l.entries)-maxErrorLogEntries:]
	}
	l.mu.Unlock()

	l.logger.WithFields(logging.Fields{
		"did":   did,
		"event": string(evt),
	}).Warn("Session error")
	if l.counter != nil {
		l.counter.SessionAnomaly(string(evt))
	}
}

func (l *ErrorLog) Entries() []ErrorLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ErrorLogEntry(nil), l.entries...)
}
