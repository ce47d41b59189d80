package service

import (
	"context"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/models"
	"potion_master/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (models.Operator, error)
}

// Preparation runs recipes and cleaning cycles, one at a time.
type Preparation interface {
	StartPour(ctx context.Context, recipe models.Recipe) (string, error)
	StartCleaning(ctx context.Context) (string, error)
	StopPour(ctx context.Context) error
	Current() (models.Preparation, bool)
}

// Hardware exposes the device snapshot and the manual operations.
type Hardware interface {
	Status() models.HardwareStatus
	Tare(ctx context.Context) error
	SetRelay(ctx context.Context, idx int, on bool) error
}

// Maintenance runs journaled operator actions.
type Maintenance interface {
	OverrideRelay(ctx context.Context, op models.Operator, idx int, on bool) error
	RunCleaning(ctx context.Context, op models.Operator) (string, error)
}

// EventLog lists the preparation journal.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.PourEvent, error)
}

type Service struct {
	Preparation
	Hardware
	Maintenance
	EventLog
	Authorization
}

type AuthOptions struct {
	SigningKey string
	TokenTTL   time.Duration
}

func NewService(repos *repository.Repository, prep Preparation, hw Hardware, auth AuthOptions, log *logger.Logger) *Service {
	return &Service{
		Preparation:   prep,
		Hardware:      hw,
		Maintenance:   NewMaintenanceService(hw, prep, repos.Journal, log.Named("maintenance")),
		EventLog:      NewEventLogService(repos.Journal),
		Authorization: NewAuthService(repos.Operators, auth.SigningKey, auth.TokenTTL),
	}
}
