package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:generate mockgen -source=unit_of_work.go -destination=mocks/mock_unit_of_work.go -package=mocks

// UnitOfWork runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(users UserRepository) error) error
}

type sqliteUnitOfWork struct {
	db *sqlx.DB
}

// NewUnitOfWork creates a transaction-per-call UnitOfWork over db.
func NewUnitOfWork(db *sqlx.DB) UnitOfWork {
	return &sqliteUnitOfWork{db: db}
}

// Do begins a transaction, runs fn and then commits on success or rolls back
// on error or panic. Panics are rethrown.
func (u *sqliteUnitOfWork) Do(ctx context.Context, fn func(users UserRepository) error) (err error) {
	ctx, span := tracer.Start(ctx, "UnitOfWork.Do")
	defer span.End()

	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	return fn(NewUserRepository(tx))
}
