package repository

import (
	"context"
	"database/sql"
	"time"

	"potion_master/internal/models"
)

// Operators holds the maintenance accounts.
type Operators interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
}

// Journal is the append-only audit trail of pour sessions.
type Journal interface {
	Append(ctx context.Context, e models.PourEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.PourEvent, error)
}

type Repository struct {
	Journal   Journal
	Operators Operators
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Journal:   NewJournalSQLite(db),
		Operators: NewOperatorSQLite(db),
	}
}
