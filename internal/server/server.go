package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/goalforge/internal/auth"
	authdomain "github.com/smallbiznis/goalforge/internal/auth/domain"
	"github.com/smallbiznis/goalforge/internal/challenge"
	challengedomain "github.com/smallbiznis/goalforge/internal/challenge/domain"
	"github.com/smallbiznis/goalforge/internal/clock"
	"github.com/smallbiznis/goalforge/internal/config"
	"github.com/smallbiznis/goalforge/internal/habit"
	habitdomain "github.com/smallbiznis/goalforge/internal/habit/domain"
	"github.com/smallbiznis/goalforge/internal/observability"
	obsmiddleware "github.com/smallbiznis/goalforge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/goalforge/internal/observability/metrics"
	obstracing "github.com/smallbiznis/goalforge/internal/observability/tracing"
	"github.com/smallbiznis/goalforge/internal/progress"
	progressdomain "github.com/smallbiznis/goalforge/internal/progress/domain"
	"github.com/smallbiznis/goalforge/internal/providers/notification"
	"github.com/smallbiznis/goalforge/internal/ratelimit"
	"github.com/smallbiznis/goalforge/internal/realtime"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	auth.Module,
	ratelimit.Module,
	notification.Module,
	realtime.Module,
	habit.Module,
	progress.Module,
	challenge.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, srv *Server) {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	auth         authdomain.Provider
	limiter      *ratelimit.Limiter
	habitSvc     habitdomain.Service
	progressSvc  progressdomain.Service
	challengeSvc challengedomain.Service
	registry     realtime.Registry
	router       realtime.Router
	upgrader     *websocket.Upgrader
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Auth         authdomain.Provider
	Limiter      *ratelimit.Limiter `optional:"true"`
	HabitSvc     habitdomain.Service
	ProgressSvc  progressdomain.Service
	ChallengeSvc challengedomain.Service
	Registry     realtime.Registry
	Router       realtime.Router
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.live"),
		clock:        p.Clock,
		auth:         p.Auth,
		limiter:      p.Limiter,
		habitSvc:     p.HabitSvc,
		progressSvc:  p.ProgressSvc,
		challengeSvc: p.ChallengeSvc,
		registry:     p.Registry,
		router:       p.Router,
		upgrader:     newUpgrader(p.Cfg.CORSOrigins),
	}

	svc.registerAPIRoutes()
	svc.registerLiveRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired(), s.APIRateLimit())

	// -------- Habits --------
	api.POST("/habits", s.CreateHabit)
	api.GET("/habits", s.ListHabits)
	api.GET("/habits/:id", s.GetHabitByID)
	api.DELETE("/habits/:id", s.DeleteHabit)
	api.POST("/habits/:id/complete", s.CompleteHabit)

	// -------- Progress --------
	api.GET("/streaks", s.GetStreak)
	api.GET("/streaks/history", s.GetStreakHistory)
	api.GET("/progress", s.GetProgress)
	api.GET("/achievements", s.ListAchievements)
	api.GET("/leaderboard/global", s.GetGlobalLeaderboard)

	// -------- Challenges --------
	api.POST("/challenges", s.CreateChallenge)
	api.GET("/challenges", s.ListChallenges)
	api.GET("/challenges/:id", s.GetChallengeByID)
	api.POST("/challenges/:id/join", s.JoinChallenge)
	api.POST("/challenges/:id/cancel", s.CancelChallenge)
	api.PUT("/challenges/:id/score", s.UpdateChallengeScore)
	api.GET("/challenges/:id/leaderboard", s.GetChallengeLeaderboard)
	api.GET("/challenges/:id/messages", s.ListChallengeMessages)
	api.POST("/challenges/:id/messages", s.PostChallengeMessage)
}

func (s *Server) registerLiveRoutes() {
	s.engine.GET("/ws", s.ServeLive)
}
