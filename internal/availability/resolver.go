// Package availability decides which of an owner's machines may join a new run.
//
// A machine is busy when it has a live assignment whose own status is not
// FINISHED or CANCELED inside a live production whose status is STANDBY or
// ONGOING. That single definition backs run creation, machine deletion and
// the dashboard.
package availability

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"production-status-backend/internal/model"
	"production-status-backend/internal/store"
)

// Resolver answers availability questions against a Store. Bind it to a
// transaction-scoped Store to read inside that transaction.
type Resolver struct {
	store *store.Store
}

// NewResolver creates a resolver reading from s.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Counts is the dashboard summary for one owner.
type Counts struct {
	Total       int64 `json:"total"`
	Used        int64 `json:"used"`
	Available   int64 `json:"available"`
	OngoingRuns int64 `json:"ongoing_runs"`
}

// busyQuery selects the machine ids of ownerID that are reserved by an active run.
func (r *Resolver) busyQuery(ctx context.Context, ownerID int64) *gorm.DB {
	return r.store.DB().WithContext(ctx).
		Table("production_machines AS pm").
		Select("pm.machine_id").
		Joins("JOIN productions p ON p.id = pm.production_id").
		Joins("JOIN machines m ON m.id = pm.machine_id").
		Where("m.owner_id = ?", ownerID).
		Where("m.deleted_at IS NULL AND pm.deleted_at IS NULL AND p.deleted_at IS NULL").
		Where("pm.status NOT IN ?", []string{string(model.AssignmentFinished), string(model.AssignmentCanceled)}).
		Where("p.status IN ?", []string{string(model.ProductionStandby), string(model.ProductionOngoing)})
}

// BusyMachineIDs returns the ids of ownerID's live machines that are busy, ascending.
func (r *Resolver) BusyMachineIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	var ids []int64
	if err := r.busyQuery(ctx, ownerID).Distinct("pm.machine_id").Order("pm.machine_id").Pluck("pm.machine_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve busy machines for owner %d: %w", ownerID, err)
	}
	return ids, nil
}

// IsBusy reports whether machineID is reserved by an active run.
func (r *Resolver) IsBusy(ctx context.Context, ownerID, machineID int64) (bool, error) {
	var count int64
	if err := r.busyQuery(ctx, ownerID).Where("pm.machine_id = ?", machineID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check machine %d: %w", machineID, err)
	}
	return count > 0, nil
}

// AvailableMachines returns ownerID's live machines that are not busy, in one query.
func (r *Resolver) AvailableMachines(ctx context.Context, ownerID int64) ([]model.Machine, error) {
	machines, err := r.store.Machines.ListLive(ctx,
		store.OwnedBy(ownerID),
		store.Where("id NOT IN (?)", r.busyQuery(ctx, ownerID)),
		store.OrderBy("id"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve available machines for owner %d: %w", ownerID, err)
	}
	return machines, nil
}

// DashboardCounts summarizes ownerID's fleet from one read snapshot.
func (r *Resolver) DashboardCounts(ctx context.Context, ownerID int64) (Counts, error) {
	var counts Counts
	err := r.store.ReadSnapshot(ctx, func(tx *store.Store) error {
		snapshot := NewResolver(tx)

		total, err := tx.Machines.CountLive(ctx, store.OwnedBy(ownerID))
		if err != nil {
			return err
		}
		busy, err := snapshot.BusyMachineIDs(ctx, ownerID)
		if err != nil {
			return err
		}
		ongoing, err := tx.Productions.CountLive(ctx,
			store.OwnedBy(ownerID),
			store.Where("status = ?", string(model.ProductionOngoing)),
		)
		if err != nil {
			return err
		}

		counts = Counts{
			Total:       total,
			Used:        int64(len(busy)),
			Available:   total - int64(len(busy)),
			OngoingRuns: ongoing,
		}
		return nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("failed to compute dashboard counts: %w", err)
	}
	return counts, nil
}
