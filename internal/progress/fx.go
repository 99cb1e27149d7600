package progress

import (
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	"github.com/smallbiznis/goalforge/internal/progress/repository"
	"github.com/smallbiznis/goalforge/internal/progress/service"
	"github.com/smallbiznis/goalforge/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("progress.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(l *ratelimit.Limiter) progressdomain.Governor { return l }),
)
