package service

import (
	"context"
	"fmt"

	"potion_master/internal/broadcast"
	"potion_master/internal/logger"
	"potion_master/internal/models"
	"potion_master/internal/repository"
)

// Feed is the live event stream the journal listens to.
type Feed interface {
	Subscribe(name string) *broadcast.Observer
	Unsubscribe(o *broadcast.Observer)
}

// JournalRecorder turns lifecycle events into journal rows.
type JournalRecorder struct {
	journal repository.Journal
	log     *logger.Logger
	current string // session id last seen
}

func NewJournalRecorder(journal repository.Journal, log *logger.Logger) *JournalRecorder {
	return &JournalRecorder{journal: journal, log: log}
}

// Run records events until ctx is done, resubscribing if the hub drops it.
func (r *JournalRecorder) Run(ctx context.Context, feed Feed) {
	o := feed.Subscribe("journal")
	defer func() { feed.Unsubscribe(o) }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.Events():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				r.log.Warnw("journal_resubscribe")
				o = feed.Subscribe("journal")
				continue
			}
			if err := r.Record(ctx, ev); err != nil {
				r.log.Errorw("journal_append_failed", "event", ev.Kind, "err", err)
			}
		}
	}
}

// Record appends the journal row for ev, if it warrants one.
func (r *JournalRecorder) Record(ctx context.Context, ev models.Event) error {
	entry, ok := r.entryFor(ev)
	if !ok {
		return nil
	}
	entry.OccurredAt = ev.Timestamp
	return r.journal.Append(ctx, entry)
}

func (r *JournalRecorder) entryFor(ev models.Event) (models.PourEvent, bool) {
	switch p := ev.Data.(type) {
	case models.Preparation:
		if ev.Kind != models.EventPreparationUpdate {
			return models.PourEvent{}, false
		}
		if p.SessionID != r.current {
			r.current = p.SessionID
			if !p.State.Terminal() {
				return models.PourEvent{
					Type:        JournalStarted,
					Description: fmt.Sprintf("%s %s started", p.Mode, label(p)),
					Metadata:    map[string]any{"sessionId": p.SessionID, "steps": p.TotalSteps},
				}, true
			}
		}
		switch p.State {
		case models.PrepCancelled:
			return models.PourEvent{
				Type:        JournalCancelled,
				Description: fmt.Sprintf("%s %s cancelled at step %d/%d", p.Mode, label(p), p.CurrentStep+1, p.TotalSteps),
				Metadata:    map[string]any{"sessionId": p.SessionID, "steps": p.Steps},
			}, true
		case models.PrepFailed:
			return models.PourEvent{
				Type:        JournalFailed,
				Description: fmt.Sprintf("%s %s failed: %s", p.Mode, label(p), p.Error),
				Metadata:    map[string]any{"sessionId": p.SessionID, "steps": p.Steps},
			}, true
		}
	case models.PreparationResult:
		return models.PourEvent{
			Type:        JournalCompleted,
			Description: fmt.Sprintf("%s completed in %dms", p.Mode, p.PreparationTime),
			Metadata:    p,
		}, true
	case models.ErrorPayload:
		if p.SessionID == "" {
			return models.PourEvent{Type: JournalRejected, Description: p.Message}, true
		}
	}
	return models.PourEvent{}, false
}

func label(p models.Preparation) string {
	if p.CocktailID != "" {
		return p.CocktailID
	}
	return p.SessionID
}
