package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yeremiapane/groupbuy-app/lifecycle"
	"github.com/yeremiapane/groupbuy-app/utils"
)

// DeadlineEvaluator is implemented by *lifecycle.Engine.
type DeadlineEvaluator interface {
	EvaluateDeadlines(ctx context.Context) (lifecycle.SweepReport, error)
}

// DeadlineSweeper runs EvaluateDeadlines on a cron schedule. Runs never
// overlap, whether started by the schedule or by RunOnce.
type DeadlineSweeper struct {
	evaluator DeadlineEvaluator
	schedule  string
	timeout   time.Duration

	cron *cron.Cron
	mu   sync.Mutex
}

func NewDeadlineSweeper(evaluator DeadlineEvaluator, schedule string) *DeadlineSweeper {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &DeadlineSweeper{
		evaluator: evaluator,
		schedule:  schedule,
		timeout:   30 * time.Second,
	}
}

func (s *DeadlineSweeper) Start() error {
	logger := cron.PrintfLogger(utils.InfoLogger)
	s.cron = cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	utils.InfoLogger.Infof("Deadline sweeper started (%s)", s.schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *DeadlineSweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	utils.InfoLogger.Info("Deadline sweeper stopped")
}

func (s *DeadlineSweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		utils.ErrorLogger.WithError(err).Error("deadline sweep failed")
	}
}

// RunOnce performs a single sweep immediately.
func (s *DeadlineSweeper) RunOnce(ctx context.Context) (lifecycle.SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluator.EvaluateDeadlines(ctx)
}
