package notification

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.notification",
	fx.Provide(NewFromLogger),
)

func NewFromLogger(log *zap.Logger) Provider {
	return NewLog(log)
}
