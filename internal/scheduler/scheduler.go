package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/goalforge/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// ChallengeSweeper closes challenges whose end date has passed.
type ChallengeSweeper interface {
	CompleteExpired(ctx context.Context) (int64, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Challenges ChallengeSweeper
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	challenges ChallengeSweeper
}

type job struct {
	name string
	run  func(ctx context.Context, run *jobRun) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Challenges == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		challenges: p.Challenges,
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: "complete_expired_challenges", run: s.CompleteExpiredChallengesJob},
	}
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	run := s.newJobRun(j.name)
	s.logJobStart(ctx, run)
	err := j.run(ctx, run)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// a deadline is a soft timeout; the next tick picks the work up again.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", j.name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", j.name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for _, j := range s.jobs() {
		err = errors.Join(err, s.runJob(ctx, j))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) CompleteExpiredChallengesJob(ctx context.Context, run *jobRun) error {
	n, err := s.challenges.CompleteExpired(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(n)
	return nil
}
