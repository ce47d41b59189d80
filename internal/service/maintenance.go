package service

import (
	"context"
	"fmt"

	"potion_master/internal/logger"
	"potion_master/internal/models"
	"potion_master/internal/repository"
)

// Journal types for operator actions.
const (
	JournalManualRelay    = "MANUAL_RELAY"
	JournalManualCleaning = "MANUAL_CLEANING"
)

type relaySwitch interface {
	SetRelay(ctx context.Context, idx int, on bool) error
}

type cleaningStarter interface {
	StartCleaning(ctx context.Context) (string, error)
}

// MaintenanceService runs operator actions and records who did what.
type MaintenanceService struct {
	relays  relaySwitch
	cleaner cleaningStarter
	journal repository.Journal
	log     *logger.Logger
}

func NewMaintenanceService(relays relaySwitch, cleaner cleaningStarter, journal repository.Journal, log *logger.Logger) *MaintenanceService {
	return &MaintenanceService{relays: relays, cleaner: cleaner, journal: journal, log: log}
}

// OverrideRelay switches one channel on behalf of op. Refused switches are
// not journaled.
func (m *MaintenanceService) OverrideRelay(ctx context.Context, op models.Operator, idx int, on bool) error {
	if err := m.relays.SetRelay(ctx, idx, on); err != nil {
		return err
	}
	m.record(ctx, models.PourEvent{
		Type:        JournalManualRelay,
		Description: fmt.Sprintf("%s switched channel %d %s", op.Username, idx, onOff(on)),
		Metadata: map[string]any{
			"operator":   op.Username,
			"operatorId": op.ID,
			"channel":    idx,
			"state":      on,
		},
	})
	return nil
}

// RunCleaning starts a cleaning cycle on behalf of op.
func (m *MaintenanceService) RunCleaning(ctx context.Context, op models.Operator) (string, error) {
	id, err := m.cleaner.StartCleaning(ctx)
	if err != nil {
		return "", err
	}
	m.record(ctx, models.PourEvent{
		Type:        JournalManualCleaning,
		Description: fmt.Sprintf("%s started a cleaning cycle", op.Username),
		Metadata: map[string]any{
			"operator":   op.Username,
			"operatorId": op.ID,
			"sessionId":  id,
		},
	})
	return id, nil
}

// record never fails the action: the relay has already moved.
func (m *MaintenanceService) record(ctx context.Context, e models.PourEvent) {
	if err := m.journal.Append(ctx, e); err != nil {
		m.log.Warnw("operator_action_not_journaled", "type", e.Type, "err", err)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
