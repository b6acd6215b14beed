// Package notice collects user-visible notices.
//
// Components report outcomes as notices keyed by dictionary entries; the view
// layer decides how to show them. A Board suppresses repeats of the same
// notice until it is flushed, so concurrent failures with the same cause
// surface once.
package notice

import (
	"fmt"
	"io"
	"sync"
)

// Kind is the severity of a notice.
type Kind int

const (
	Info Kind = iota
	Success
	Error
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notice is one user-visible message. Key is a dictionary key; Text, when
// set, is shown verbatim instead of the translated key.
type Notice struct {
	Kind Kind
	Key  string
	Text string
}

// Sink receives notices.
type Sink interface {
	Notify(n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

func (f SinkFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(Notice) {})

// Board queues notices for display and drops duplicates of a notice that is
// already pending.
type Board struct {
	mu        sync.Mutex
	pending   []Notice
	seen      map[Notice]bool
	translate func(key string) string
}

// NewBoard returns a board that renders keys through translate. A nil
// translate renders the key itself.
func NewBoard(translate func(key string) string) *Board {
	if translate == nil {
		translate = func(key string) string { return key }
	}
	return &Board{seen: make(map[Notice]bool), translate: translate}
}

// Notify queues n unless an identical notice is already pending.
func (b *Board) Notify(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[n] {
		return
	}
	b.seen[n] = true
	b.pending = append(b.pending, n)
}

// Pending returns the queued notices without flushing them.
func (b *Board) Pending() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notice, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush returns and clears the queued notices.
func (b *Board) Flush() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	b.seen = make(map[Notice]bool)
	return out
}

// Text renders n for display.
func (b *Board) Text(n Notice) string {
	if n.Text != "" {
		return n.Text
	}
	return b.translate(n.Key)
}

// Print flushes the board to w, one line per notice.
func (b *Board) Print(w io.Writer) {
	for _, n := range b.Flush() {
		prefix := "•"
		switch n.Kind {
		case Success:
			prefix = "✓"
		case Error:
			prefix = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", prefix, b.Text(n))
	}
}
