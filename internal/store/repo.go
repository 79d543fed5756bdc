package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-status-backend/internal/apperr"
)

// Scope narrows a query. It matches gorm's Scopes signature.
type Scope func(*gorm.DB) *gorm.DB

// SoftDeleter is the tombstone capability every entity repository offers.
type SoftDeleter[T any] interface {
	FindLive(ctx context.Context, id int64) (*T, error)
	FindAny(ctx context.Context, id int64) (*T, error)
	SoftDelete(ctx context.Context, id int64) error
}

// Repo is a soft-delete aware repository for one entity type. T must embed
// model.Base so GORM recognizes its DeletedAt field.
type Repo[T any] struct {
	db   *gorm.DB
	name string
	lock bool
}

var _ SoftDeleter[struct{}] = (*Repo[struct{}])(nil)

// NewRepo creates a repository for T; name is used in NotFound messages.
func NewRepo[T any](db *gorm.DB, name string) *Repo[T] {
	return &Repo[T]{db: db, name: name}
}

// ForUpdate returns a view of r whose reads take row locks.
func (r *Repo[T]) ForUpdate() *Repo[T] {
	return &Repo[T]{db: r.db, name: r.name, lock: true}
}

func (r *Repo[T]) session(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// Create inserts a new entity. Associations are never written implicitly.
func (r *Repo[T]) Create(ctx context.Context, entity *T) error {
	if err := r.session(ctx).Omit(clause.Associations).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", r.name, err)
	}
	return nil
}

// CreateAll inserts entities in one statement.
func (r *Repo[T]) CreateAll(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	if err := r.session(ctx).Omit(clause.Associations).Create(&entities).Error; err != nil {
		return fmt.Errorf("failed to create %s batch: %w", r.name, err)
	}
	return nil
}

// Save inserts or updates entity with all of its fields.
func (r *Repo[T]) Save(ctx context.Context, entity *T) error {
	if err := r.session(ctx).Omit(clause.Associations).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to save %s: %w", r.name, err)
	}
	return nil
}

// FindLive returns the live entity with the given id.
func (r *Repo[T]) FindLive(ctx context.Context, id int64) (*T, error) {
	return r.find(r.session(ctx), id)
}

// FindAny returns the entity with the given id, tombstoned or not.
func (r *Repo[T]) FindAny(ctx context.Context, id int64) (*T, error) {
	return r.find(r.session(ctx).Unscoped(), id)
}

// FindLiveWhere returns the first live entity matching scopes.
func (r *Repo[T]) FindLiveWhere(ctx context.Context, scopes ...Scope) (*T, error) {
	var entity T
	err := r.session(ctx).Scopes(toGorm(scopes)...).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "%s not found", r.name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", r.name, err)
	}
	return &entity, nil
}

func (r *Repo[T]) find(db *gorm.DB, id int64) (*T, error) {
	var entity T
	err := db.First(&entity, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "%s %d not found", r.name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %d: %w", r.name, id, err)
	}
	return &entity, nil
}

// ListLive returns every live entity matching scopes.
func (r *Repo[T]) ListLive(ctx context.Context, scopes ...Scope) ([]T, error) {
	var entities []T
	if err := r.session(ctx).Scopes(toGorm(scopes)...).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.name, err)
	}
	return entities, nil
}

// CountLive counts the live entities matching scopes.
func (r *Repo[T]) CountLive(ctx context.Context, scopes ...Scope) (int64, error) {
	var count int64
	if err := r.session(ctx).Model(new(T)).Scopes(toGorm(scopes)...).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.name, err)
	}
	return count, nil
}

// ExistsAny reports whether any row, tombstoned or not, matches scopes.
func (r *Repo[T]) ExistsAny(ctx context.Context, scopes ...Scope) (bool, error) {
	var count int64
	if err := r.session(ctx).Unscoped().Model(new(T)).Scopes(toGorm(scopes)...).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", r.name, err)
	}
	return count > 0, nil
}

// SoftDelete tombstones the entity. Deleting an already tombstoned entity is a no-op.
func (r *Repo[T]) SoftDelete(ctx context.Context, id int64) error {
	if _, err := r.FindAny(ctx, id); err != nil {
		return err
	}
	// GORM only touches rows whose deleted_at is still NULL.
	if err := r.session(ctx).Delete(new(T), id).Error; err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", r.name, id, err)
	}
	return nil
}

// SoftDeleteWhere tombstones every live entity matching scopes and
// returns how many rows were affected.
func (r *Repo[T]) SoftDeleteWhere(ctx context.Context, scopes ...Scope) (int64, error) {
	if len(scopes) == 0 {
		return 0, fmt.Errorf("refusing to delete every %s", r.name)
	}
	result := r.session(ctx).Scopes(toGorm(scopes)...).Delete(new(T))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", r.name, result.Error)
	}
	return result.RowsAffected, nil
}

// hardDelete physically removes the row. It stays unexported so purges can
// only happen inside this package; no service operation removes rows.
func (r *Repo[T]) hardDelete(ctx context.Context, id int64) error {
	if err := r.session(ctx).Unscoped().Delete(new(T), id).Error; err != nil {
		return fmt.Errorf("failed to purge %s %d: %w", r.name, id, err)
	}
	return nil
}

func toGorm(scopes []Scope) []func(*gorm.DB) *gorm.DB {
	out := make([]func(*gorm.DB) *gorm.DB, len(scopes))
	for i, s := range scopes {
		out[i] = s
	}
	return out
}
