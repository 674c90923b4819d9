// Package alerts delivers account and post lifecycle events to operators
// and downstream systems. Delivery is always best effort: a failed alert
// is logged and never propagates into the connect or publish paths.
package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind classifies an alert event.
type Kind string

const (
	KindAccountExpired      Kind = "account_expired"
	KindAccountRevoked      Kind = "account_revoked"
	KindPostPublished       Kind = "post_published"
	KindPostPartiallyFailed Kind = "post_partially_failed"
	KindPostFailed          Kind = "post_failed"
)

// actionRequired marks the kinds a user or operator has to act on.
func actionRequired(kind Kind) bool {
	switch kind {
	case KindAccountExpired, KindAccountRevoked, KindPostFailed, KindPostPartiallyFailed:
		return true
	}
	return false
}

// Event is one alert. Fields that don't apply to the kind stay empty.
type Event struct {
	Kind       Kind      `json:"kind"`
	UserID     string    `json:"user_id,omitempty"`
	AccountID  string    `json:"account_id,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	PostID     string    `json:"post_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier is one delivery channel for alert events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	SupportsKind(kind Kind) bool
}

// MultiNotifier fans an event out to every notifier that supports its
// kind. Individual failures are logged and swallowed.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMultiNotifier creates a fan-out router over the given notifiers.
func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: logger}
}

func (m *MultiNotifier) Notify(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	for _, n := range m.notifiers {
		if !n.SupportsKind(event.Kind) {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			m.logger.Warn("notifier failed",
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// SupportsKind reports whether any underlying notifier handles the kind.
func (m *MultiNotifier) SupportsKind(kind Kind) bool {
	for _, n := range m.notifiers {
		if n.SupportsKind(kind) {
			return true
		}
	}
	return false
}

// LogNotifier writes events to the log. Used in development and as the
// fallback when no delivery channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, event Event) error {
	l.logger.Info("alert event",
		zap.String("kind", string(event.Kind)),
		zap.String("user_id", event.UserID),
		zap.String("account_id", event.AccountID),
		zap.String("platform", event.Platform),
		zap.String("post_id", event.PostID),
		zap.String("detail", event.Detail),
	)
	return nil
}

func (l *LogNotifier) SupportsKind(kind Kind) bool { return true }
