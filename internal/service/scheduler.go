package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultEpochInterval = 1 * time.Hour

// EpochScheduler triggers the orchestrator once per epoch boundary, either
// on a cron expression or a fixed ticker interval. Manual triggering through
// the HTTP surface stays available; the redistribution idempotency guard
// makes an overlap between the two settle each belief at most once.
type EpochScheduler struct {
	epochs *EpochService
	logger *zap.Logger

	cronSpec string
	interval time.Duration

	cron   *cron.Cron
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewEpochScheduler(epochs *EpochService, logger *zap.Logger) *EpochScheduler {
	return &EpochScheduler{
		epochs:   epochs,
		logger:   logger,
		interval: defaultEpochInterval,
		stopCh:   make(chan struct{}),
	}
}

// SetCronSpec switches the scheduler to a cron expression trigger.
func (s *EpochScheduler) SetCronSpec(spec string) {
	s.cronSpec = spec
}

func (s *EpochScheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start launches the trigger loop in a background goroutine.
func (s *EpochScheduler) Start() {
	if s.cronSpec != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.cronSpec, s.trigger); err != nil {
			s.logger.Error("invalid epoch cron spec, falling back to interval",
				zap.String("spec", s.cronSpec), zap.Error(err))
			s.cron = nil
		} else {
			s.cron.Start()
			s.logger.Info("epoch scheduler started", zap.String("cron", s.cronSpec))
			return
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("epoch scheduler started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				s.trigger()
			case <-s.stopCh:
				s.logger.Info("epoch scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *EpochScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

func (s *EpochScheduler) trigger() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := s.epochs.ProcessEpoch(ctx, nil)
	if err != nil {
		s.logger.Error("scheduled epoch processing failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled epoch processed",
		zap.Int64("next_epoch", report.NextEpoch),
		zap.Int("processed", len(report.ProcessedBeliefs)),
		zap.Int("errors", len(report.Errors)))
}
