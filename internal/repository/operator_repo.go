package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"potion_master/internal/models"
)

// OperatorSQLite stores maintenance operators.
type OperatorSQLite struct {
	db *sql.DB
}

func NewOperatorSQLite(db *sql.DB) *OperatorSQLite {
	return &OperatorSQLite{db: db}
}

var _ Operators = (*OperatorSQLite)(nil)

const (
	insertOperatorSQL       = `INSERT INTO operators (username, password_hash) VALUES (?, ?)`
	selectOperatorByNameSQL = `SELECT id, username, password_hash FROM operators WHERE username = ?`
)

// ErrOperatorExists is returned when the username is already taken.
var ErrOperatorExists = errors.New("operator already exists")

// Create inserts an operator and returns its id.
func (r *OperatorSQLite) Create(ctx context.Context, username, passwordHash string) (int, error) {
	if existing, err := r.GetByUsername(ctx, username); err != nil {
		return 0, err
	} else if existing != nil {
		return 0, fmt.Errorf("%w: %q", ErrOperatorExists, username)
	}

	res, err := r.db.ExecContext(ctx, insertOperatorSQL, username, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("insert operator %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("operator %q id: %w", username, err)
	}
	return int(id), nil
}

// GetByUsername returns (nil, nil) when there is no such operator.
func (r *OperatorSQLite) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	var op models.Operator
	err := r.db.QueryRowContext(ctx, selectOperatorByNameSQL, username).Scan(&op.ID, &op.Username, &op.PasswordHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("select operator %q: %w", username, err)
	}
	return &op, nil
}
