package messaging

import (
	"context"

	"github.com/ncobase/runner/logging/logger"
)

// LogNotifier writes notifications to the logger.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier returns a notifier that logs every notification.
func NewLogNotifier(l *logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.StdLogger()
	}
	return &LogNotifier{log: l}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	if _, err := encode(&note); err != nil {
		return err
	}
	n.log.Info(ctx, "Notification",
		"event", note.Event,
		"notification_id", note.ID,
		"workspace_id", note.WorkspaceID,
		"job_id", note.JobID,
		"run_id", note.RunID,
		"attempt", note.Attempt,
		"message", note.Message,
	)
	return nil
}

// Close implements Notifier.
func (n *LogNotifier) Close() error { return nil }
