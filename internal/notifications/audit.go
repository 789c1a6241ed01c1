package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"postpilot/internal/observability"
)

// StartEventAudit consumes every user's status events, counting them by type and
// logging each one, until ctx is cancelled.
func StartEventAudit(ctx context.Context, n *Notifier, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		var event PostStatusEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			observability.PostEventsTotal.WithLabelValues("malformed").Inc()
			logger.Warn("malformed post status event",
				slog.String("channel", channel),
				slog.String("error", err.Error()))
			return
		}

		observability.PostEventsTotal.WithLabelValues(event.Type).Inc()
		logger.Info("post status event",
			slog.String("user_id", strings.TrimPrefix(channel, UserChannel(""))),
			slog.String("type", event.Type),
			slog.String("post_id", event.PostID),
			slog.String("status", event.Status),
			slog.Int("retry_count", event.RetryCount),
		)
	})
}
