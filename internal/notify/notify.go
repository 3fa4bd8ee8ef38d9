// Package notify delivers notifications to the user-facing side.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/msageha/cmdrelay/internal/model"
)

// Sink receives each notification once, in the order the reader produced them.
type Sink interface {
	Deliver(n model.Notification)
}

// Func adapts a plain function to Sink.
type Func func(n model.Notification)

func (f Func) Deliver(n model.Notification) { f(n) }

// Multi delivers to every sink in order.
type Multi []Sink

func (m Multi) Deliver(n model.Notification) {
	for _, s := range m {
		s.Deliver(n)
	}
}

// Title is the short form used as a desktop notification title.
func Title(n model.Notification) string {
	if n.Payload == "" {
		return fmt.Sprintf("%s %s", n.CommandName, n.Outcome)
	}
	return fmt.Sprintf("%s:%s %s", n.CommandName, n.Payload, n.Outcome)
}

// Format renders a notification on one line.
func Format(n model.Notification) string {
	result := strings.ReplaceAll(strings.TrimSpace(n.ResultPayload), "\n", " | ")
	if result == "" {
		return fmt.Sprintf("%s [%s] %s", n.Timestamp, n.Outcome, commandText(n))
	}
	return fmt.Sprintf("%s [%s] %s: %s", n.Timestamp, n.Outcome, commandText(n), result)
}

func commandText(n model.Notification) string {
	if n.Payload == "" {
		return n.CommandName
	}
	return n.CommandName + ":" + n.Payload
}

// Writer prints one line per notification.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Deliver(n model.Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, Format(n))
}
