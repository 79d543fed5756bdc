// Package registry owns machine registration and retirement per tenant.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"production-status-backend/internal/apperr"
	"production-status-backend/internal/availability"
	"production-status-backend/internal/metrics"
	"production-status-backend/internal/model"
	"production-status-backend/internal/store"
)

// Limits caps how many live machines an owner may hold.
type Limits struct {
	Standard int
	Premium  int
}

// For returns the limit that applies to owner.
func (l Limits) For(owner *model.Owner) int {
	if owner.IsPremium {
		return l.Premium
	}
	return l.Standard
}

// DefaultLimits are used when no quota is configured.
var DefaultLimits = Limits{Standard: 5, Premium: 10}

const maxFieldLength = 255

// Registry registers, lists and deletes machines.
type Registry struct {
	store  *store.Store
	limits Limits
	log    *zap.Logger
}

// New creates a Registry.
func New(s *store.Store, limits Limits, log *zap.Logger) *Registry {
	return &Registry{store: s, limits: limits, log: log}
}

// MachineView is a machine annotated with its current reservation state.
type MachineView struct {
	model.Machine
	Busy bool `json:"busy"`
}

// Register creates a machine for ownerID. The quota check and the insert run
// under the owner's row lock so concurrent registrations cannot overshoot.
func (r *Registry) Register(ctx context.Context, ownerID int64, machineModel, serial string) (*model.Machine, error) {
	machineModel = strings.TrimSpace(machineModel)
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, r.reject("register", apperr.New(apperr.InvalidInput, "serial number is required"))
	}
	if machineModel == "" {
		return nil, r.reject("register", apperr.New(apperr.InvalidInput, "model is required"))
	}
	if len(serial) > maxFieldLength || len(machineModel) > maxFieldLength {
		return nil, r.reject("register", apperr.New(apperr.InvalidInput, "model and serial number must be at most %d characters", maxFieldLength))
	}

	var machine *model.Machine
	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		owner, err := tx.LockOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		limit := r.limits.For(owner)
		count, err := tx.Machines.CountLive(ctx, store.OwnedBy(ownerID))
		if err != nil {
			return err
		}
		if count >= int64(limit) {
			return apperr.New(apperr.QuotaExceeded, "machine limit of %d reached", limit).WithLimit(limit)
		}

		taken, err := tx.Machines.ExistsAny(ctx, store.Where("serial_number = ?", serial))
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.DuplicateSerial, "serial number %q is already registered", serial)
		}

		machine = &model.Machine{Model: machineModel, SerialNumber: serial, OwnerID: ownerID}
		if err := tx.Machines.Create(ctx, machine); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.New(apperr.DuplicateSerial, "serial number %q is already registered", serial)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, r.reject("register", err)
	}

	r.log.Info("machine registered",
		zap.Int64("owner_id", ownerID),
		zap.Int64("machine_id", machine.ID),
		zap.String("serial_number", machine.SerialNumber))
	return machine, nil
}

// Delete tombstones a machine. It is refused while the machine is busy.
func (r *Registry) Delete(ctx context.Context, ownerID, machineID int64) error {
	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.LockOwner(ctx, ownerID); err != nil {
			return err
		}

		machine, err := tx.Machines.ForUpdate().FindLive(ctx, machineID)
		if err != nil {
			return err
		}
		if machine.OwnerID != ownerID {
			return apperr.New(apperr.Forbidden, "machine %d belongs to another owner", machineID)
		}

		busy, err := availability.NewResolver(tx).IsBusy(ctx, ownerID, machineID)
		if err != nil {
			return err
		}
		if busy {
			return apperr.New(apperr.MachineBusy, "machine %d is assigned to an active production", machineID).
				WithMachines([]int64{machineID})
		}

		return tx.Machines.SoftDelete(ctx, machineID)
	})
	if err != nil {
		return r.reject("delete_machine", err)
	}

	r.log.Info("machine deleted", zap.Int64("owner_id", ownerID), zap.Int64("machine_id", machineID))
	return nil
}

// List returns ownerID's live machines, newest first, with their busy flag.
func (r *Registry) List(ctx context.Context, ownerID int64) ([]MachineView, error) {
	machines, err := r.store.Machines.ListLive(ctx, store.OwnedBy(ownerID), store.OrderBy("id DESC"))
	if err != nil {
		return nil, err
	}
	busyIDs, err := availability.NewResolver(r.store).BusyMachineIDs(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	busy := make(map[int64]bool, len(busyIDs))
	for _, id := range busyIDs {
		busy[id] = true
	}

	views := make([]MachineView, 0, len(machines))
	for _, m := range machines {
		views = append(views, MachineView{Machine: m, Busy: busy[m.ID]})
	}
	return views, nil
}

func (r *Registry) reject(operation string, err error) error {
	if kind := apperr.KindOf(err); kind != "" {
		metrics.ObserveRejection(operation, kind)
		r.log.Debug("machine operation rejected", zap.String("operation", operation), zap.Error(err))
		return err
	}
	return fmt.Errorf("%s: %w", operation, err)
}
