package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"potion_master/internal/models"
	"potion_master/internal/repository"
)

// Journal entry types.
const (
	JournalStarted   = "STARTED"
	JournalCompleted = "COMPLETED"
	JournalCancelled = "CANCELLED"
	JournalFailed    = "FAILED"
	JournalRejected  = "REJECTED"
)

// LogFilter narrows a journal listing. Zero bounds are open.
type LogFilter struct {
	From time.Time
	To   time.Time
	Type string
}

var ErrInvalidTimeRange = errors.New("invalid time range: from must be <= to")

type EventLogService struct {
	journal repository.Journal
}

func NewEventLogService(journal repository.Journal) *EventLogService {
	return &EventLogService{journal: journal}
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.PourEvent, error) {
	from, to := toUTC(f.From), toUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, ErrInvalidTimeRange
	}
	return s.journal.List(ctx, from, to, strings.ToUpper(strings.TrimSpace(f.Type)))
}

func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
