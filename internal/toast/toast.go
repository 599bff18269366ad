// Package toast delivers short, transient notices to the user.
package toast

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"skyprefs/pkg/logging"
)

type Kind string

const (
	KindDefault Kind = "default"
	KindError   Kind = "xmark"
	KindSuccess Kind = "check"
)

type Notifier interface {
	Show(message string, kind Kind)
}

// LogNotifier writes notices to a logger. Used where no terminal is attached.
type LogNotifier struct {
	Logger logging.Logger
}

func (n LogNotifier) Show(message string, kind Kind) {
	n.Logger.WithFields(logging.Fields{"kind": string(kind)}).Info(message)
}

// Terminal prints colored notices to w.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Show(message string, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch kind {
	case KindError:
		_, _ = color.New(color.FgRed).Fprintf(t.w, "✗ %s\n", message)
	case KindSuccess:
		_, _ = color.New(color.FgGreen).Fprintf(t.w, "✓ %s\n", message)
	default:
		_, _ = fmt.Fprintf(t.w, "• %s\n", message)
	}
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

type Notice struct {
	Message string
	Kind    Kind
}

func (r *Recorder) Show(message string, kind Kind) {
	r.mu.Lock()
	r.notices = append(r.notices, Notice{Message: message, Kind: kind})
	r.mu.Unlock()
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}
