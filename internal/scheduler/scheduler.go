package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/service"
	"github.com/lingoria/school-ops-api/pkg/config"
	"github.com/lingoria/school-ops-api/pkg/storage"
)

// Scheduler runs the background jobs that keep state moving without human
// input: due follow-up sends, class status rollover, stalled-enrollment
// abandonment and export cleanup.
type Scheduler struct {
	cron        *cron.Cron
	followUps   *service.FollowUpService
	classes     *service.ClassService
	enrollments *service.EnrollmentService
	exports     *storage.LocalStorage
	cfg         *config.Config
	logger      *zap.Logger
}

// New constructs the scheduler with all periodic tasks registered.
func New(
	followUps *service.FollowUpService,
	classes *service.ClassService,
	enrollments *service.EnrollmentService,
	exports *storage.LocalStorage,
	cfg *config.Config,
	logger *zap.Logger,
) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:        cron.New(),
		followUps:   followUps,
		classes:     classes,
		enrollments: enrollments,
		exports:     exports,
		cfg:         cfg,
		logger:      logger,
	}

	if _, err := s.cron.AddFunc(everyInterval(cfg.FollowUps.ScanInterval), s.advanceDueFollowUps); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("*/10 * * * *", s.rolloverClassStatuses); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(everyInterval(cfg.Enrollments.SweepInterval), s.sweepStalledEnrollments); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("30 3 * * *", s.cleanupExports); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) advanceDueFollowUps() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	advanced, err := s.followUps.AdvanceDue(ctx, s.cfg.FollowUps.BatchSize)
	if err != nil {
		s.logger.Error("follow-up scan failed", zap.Error(err))
		return
	}
	if advanced > 0 {
		s.logger.Info("due follow-ups advanced", zap.Int("count", advanced))
	}
}

func (s *Scheduler) rolloverClassStatuses() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.classes.RolloverStatuses(ctx); err != nil {
		s.logger.Error("class status rollover failed", zap.Error(err))
	}
}

func (s *Scheduler) sweepStalledEnrollments() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.enrollments.SweepStalled(ctx, s.cfg.Enrollments.StallAfter); err != nil {
		s.logger.Error("stalled-enrollment sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) cleanupExports() {
	removed, err := s.exports.CleanupOlderThan(s.cfg.Exports.SignedURLTTL)
	if err != nil {
		s.logger.Error("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("stale exports removed", zap.Int("count", len(removed)))
	}
}

// everyInterval renders a duration as a cron @every spec, clamped to a
// one-minute floor.
func everyInterval(d time.Duration) string {
	if d < time.Minute {
		d = time.Minute
	}
	return "@every " + d.String()
}
