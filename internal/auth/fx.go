package auth

import (
	"github.com/smallbiznis/goalforge/internal/auth/domain"
	"github.com/smallbiznis/goalforge/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(service.New),
	fx.Provide(func(p *service.JWTProvider) domain.Provider { return p }),
	fx.Provide(func(p *service.JWTProvider) domain.Issuer { return p }),
)
