package notify

import (
	"context"
	"log/slog"

	"auditorium-reservation/internal/usecase/shared"
)

// LogNotifier records notifications in the structured log when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

var _ shared.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(ctx context.Context, notification shared.Notification) error {
	attrs := []any{
		slog.String("event", string(notification.Kind)),
		slog.String("recipient", string(notification.Recipient.Kind)),
		slog.String("reservation_id", notification.Reservation.ID.String()),
		slog.String("resource_id", notification.Reservation.ResourceID.String()),
		slog.Time("start", notification.Reservation.Start),
		slog.Time("end", notification.Reservation.End),
	}
	if notification.Recipient.Kind == shared.RecipientOwner {
		attrs = append(attrs, slog.String("owner_id", notification.Recipient.UserID.String()))
	}
	if notification.PreviousWindow != nil {
		attrs = append(attrs,
			slog.Time("previous_start", notification.PreviousWindow.Start),
			slog.Time("previous_end", notification.PreviousWindow.End))
	}

	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
