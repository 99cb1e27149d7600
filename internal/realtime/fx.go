package realtime

import "go.uber.org/fx"

var Module = fx.Module("realtime",
	fx.Provide(New),
	fx.Provide(func(h *Hub) Router { return h }),
	fx.Provide(func(h *Hub) Registry { return h }),
	fx.Provide(func(h *Hub) Publisher { return h }),
)
