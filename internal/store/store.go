package store

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"production-status-backend/internal/model"
)

// Store groups the entity repositories over one database handle.
// Inside Transaction every repository shares the transaction.
type Store struct {
	db *gorm.DB

	Owners      *Repo[model.Owner]
	Machines    *Repo[model.Machine]
	Productions *Repo[model.Production]
	Assignments *Repo[model.ProductionMachine]
}

// New creates a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		Owners:      NewRepo[model.Owner](db, "owner"),
		Machines:    NewRepo[model.Machine](db, "machine"),
		Productions: NewRepo[model.Production](db, "production"),
		Assignments: NewRepo[model.ProductionMachine](db, "production machine"),
	}
}

// DB exposes the underlying handle for read-only queries that span tables.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside one database transaction. fn receives a Store
// bound to the transaction; returning an error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// LockOwner loads the owner row with a row lock held until the transaction
// ends. Per-owner check-then-write sequences take this lock first.
func (s *Store) LockOwner(ctx context.Context, ownerID int64) (*model.Owner, error) {
	owner, err := s.Owners.ForUpdate().FindLive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lock owner: %w", err)
	}
	return owner, nil
}

// ReadSnapshot runs fn inside a read-only transaction that sees one snapshot
// on postgres. Other dialects fall back to a plain transaction.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(tx *Store) error) error {
	var opts []*sql.TxOptions
	if s.db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	}, opts...)
}
