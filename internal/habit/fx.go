package habit

import (
	"github.com/smallbiznis/goalforge/internal/habit/repository"
	"github.com/smallbiznis/goalforge/internal/habit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("habit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
