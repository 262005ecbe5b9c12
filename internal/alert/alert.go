// Package alert delivers operator notifications when automation degrades
// to a needs-human state. Notifiers are fire-and-forget: a failed alert is
// logged, never allowed to fail the state transition that raised it.
package alert

import (
	"context"
	"fmt"
	"log"
)

// Severity levels for alert events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event is one operator-facing notification. It carries enough context
// (ids, decision data) that the operator can act without re-deriving the
// decision from scratch.
type Event struct {
	Severity      string
	Title         string
	Body          string
	NegotiationID uint // zero when not tied to a negotiation
}

// Notifier delivers events to one destination.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi fans an event out to several notifiers, logging per-notifier
// failures and never returning one.
type Multi struct {
	notifiers []Notifier
}

// NewMulti builds a fan-out notifier. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify delivers ev to every configured notifier.
func (m *Multi) Notify(ctx context.Context, ev Event) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			log.Printf("alert: notify: %v", err)
		}
	}
	return nil
}

// severityColor maps a severity to the sidebar color hint chat platforms use.
func severityColor(severity string) string {
	switch severity {
	case SeverityError:
		return "#d00000"
	case SeverityWarning:
		return "#e8a317"
	default:
		return "#36a64f"
	}
}

// formatTitle prefixes the negotiation id when present.
func formatTitle(ev Event) string {
	if ev.NegotiationID == 0 {
		return ev.Title
	}
	return fmt.Sprintf("[neg %d] %s", ev.NegotiationID, ev.Title)
}
