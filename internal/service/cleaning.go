package service

import (
	"context"
	"errors"
	"fmt"

	"potion_master/internal/logger"
	"potion_master/internal/models"

	"github.com/robfig/cron/v3"
)

type cleaner interface {
	StartCleaning(ctx context.Context) (string, error)
}

// CleaningScheduler starts a cleaning cycle on a cron schedule, skipping
// runs that would collide with a preparation.
type CleaningScheduler struct {
	cron    *cron.Cron
	cleaner cleaner
	log     *logger.Logger
}

// NewCleaningScheduler parses a standard five-field cron spec.
func NewCleaningScheduler(spec string, c cleaner, log *logger.Logger) (*CleaningScheduler, error) {
	s := &CleaningScheduler{cron: cron.New(), cleaner: c, log: log}
	if _, err := s.cron.AddFunc(spec, s.trigger); err != nil {
		return nil, fmt.Errorf("cleaning schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *CleaningScheduler) trigger() {
	id, err := s.cleaner.StartCleaning(context.Background())
	switch {
	case errors.Is(err, models.ErrAlreadyPreparing):
		s.log.Infow("scheduled_cleaning_skipped", "reason", "busy")
	case err != nil:
		s.log.Errorw("scheduled_cleaning_failed", "err", err)
	default:
		s.log.Infow("scheduled_cleaning_started", "session", id)
	}
}

// Run starts the scheduler and stops it when ctx is done.
func (s *CleaningScheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
