package notify

import (
	"context"

	"github.com/rs/zerolog"

	"wb_reviews/internal/adapters/observability"
	"wb_reviews/internal/domain"
)

// LogSink writes notifications to the log. Useful in development.
type LogSink struct{ l zerolog.Logger }

func NewLogSink(l zerolog.Logger) *LogSink { return &LogSink{l: l} }

func (s *LogSink) Notify(ctx context.Context, n domain.Notification) error {
	s.l.Info().
		Str("article", n.Article).
		Str("external_id", n.ExternalID).
		Str("message", Format(n)).
		Msg("review notification")
	observability.ObserveNotification("log", nil)
	return nil
}
