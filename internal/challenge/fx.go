package challenge

import (
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	"github.com/smallbiznis/goalforge/internal/challenge/repository"
	"github.com/smallbiznis/goalforge/internal/challenge/service"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	"github.com/smallbiznis/goalforge/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("challenge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewChannelAuthorizer),
	fx.Provide(func(svc challengedomain.Service) progressdomain.ChallengeDirectory { return svc }),
	fx.Provide(func(l *ratelimit.Limiter) challengedomain.Governor { return l }),
)
