package events

import (
	"context"

	"leaguebid/internal/notify"
)

// NotifySink announces events through the chat notifier.
type NotifySink struct {
	n *notify.Notifier
}

func NewNotifySink(n *notify.Notifier) *NotifySink {
	return &NotifySink{n: n}
}

func (s *NotifySink) Name() string { return "notify" }

func (s *NotifySink) Publish(ctx context.Context, ev Event) error {
	if report, ok := ev.Clearing(); ok {
		title, msg := notify.ClearingMessage(report)
		return s.n.Notify(ctx, notify.EventSessionCleared, title, msg)
	}
	if grant, ok := ev.Reward(); ok {
		title, msg := notify.RewardMessage(grant)
		return s.n.Notify(ctx, notify.EventRewardGranted, title, msg)
	}
	return nil
}
