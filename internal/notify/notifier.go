// Package notify delivers short market announcements to chat channels.
// Every configured sender receives each message; the event filter decides
// which announcements go out at all.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	EventSessionCleared = "session.cleared"
	EventRewardGranted  = "reward.granted"
)

type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type Notifier struct {
	senders []Sender
	events  map[string]bool
	log     *slog.Logger
}

// NewNotifier builds a Notifier. An empty events list lets every event
// through.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		log:     logger.With("component", "notifier"),
	}
}

func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.log.DebugContext(ctx, "event filtered out", "event", event)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.ErrorContext(ctx, "sender failed", "sender", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.log.DebugContext(ctx, "notification sent", "sender", s.Name(), "title", title)
	}
	return errors.Join(errs...)
}
