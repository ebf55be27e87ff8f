package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store wraps the database handle and opens all-or-nothing units of work.
// Repository methods accept an sqlx.ExtContext so the same code runs against
// the pooled handle or an open transaction.
type Store struct {
	db *sqlx.DB
}

// NewStore constructs the store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only paths that need no
// transaction.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// InTx runs fn inside a transaction, rolling back on error or panic and
// committing otherwise.
func (s *Store) InTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
