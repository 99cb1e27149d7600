package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogProvider records notifications in the structured log.
type LogProvider struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *LogProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogProvider{log: log.Named("notification")}
}

func (p *LogProvider) Notify(_ context.Context, n Notification) error {
	if err := validate(n); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("user_id", n.UserID),
		zap.String("kind", n.Kind),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	}
	if len(n.Data) > 0 {
		fields = append(fields, zap.Any("data", n.Data))
	}
	p.log.Info("notification", fields...)
	return nil
}
