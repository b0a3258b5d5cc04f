// Package notify contains NotificationGateway implementations.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/escalator/internal/ports/secondary"
)

// LogGateway writes notification requests to the log instead of delivering them.
// It is the development default.
type LogGateway struct {
	logger *zap.Logger
}

// NewLogGateway creates a gateway that logs every request at info level.
func NewLogGateway(logger *zap.Logger) *LogGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogGateway{logger: logger}
}

// Send logs the request and returns a synthetic attempt ID.
func (g *LogGateway) Send(ctx context.Context, req secondary.NotificationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	attemptID := "log-" + uuid.NewString()
	g.logger.Info("notification requested",
		zap.String("attempt_id", attemptID),
		zap.String("notification_id", req.NotificationID),
		zap.String("tenant_id", req.TenantID),
		zap.String("case_id", req.CaseID),
		zap.Int("level", req.Level),
		zap.String("recipient_id", req.RecipientID),
		zap.String("method", req.Method),
	)
	return attemptID, nil
}

var _ secondary.NotificationGateway = (*LogGateway)(nil)
