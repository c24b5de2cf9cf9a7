package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/domain/entity"
)

// LogNotifier writes notifications to the log. Used when no messaging channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send logs n and always succeeds
func (n *LogNotifier) Send(ctx context.Context, msg entity.Notification) error {
	n.logger.Info("Notification",
		zap.String("target", msg.Target),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("metadata", msg.Metadata))
	return nil
}
