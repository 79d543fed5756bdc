// Package lifecycle drives productions and their machine assignments through
// their coupled state machines.
//
// Every operation runs in one transaction that first locks the rows it reads
// (owner, production, assignments), so a reader never observes a half-applied
// cascade and two creations can never reserve the same machine.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"production-status-backend/internal/apperr"
	"production-status-backend/internal/availability"
	"production-status-backend/internal/metrics"
	"production-status-backend/internal/model"
	"production-status-backend/internal/store"
)

// Event describes a run that reached a terminal status.
type Event struct {
	OwnerID      int64
	ProductionID int64
	Description  string
	Status       model.ProductionStatus
}

// Notifier is told about runs that finished or were canceled, after commit.
type Notifier interface {
	ProductionClosed(event Event)
}

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	// HaltBlocksFinish makes HALT assignments block a run-level finish.
	HaltBlocksFinish bool
	// Now is the clock used for status timestamps.
	Now func() time.Time
	// Notifier receives terminal-run events; nil disables notifications.
	Notifier Notifier
}

// Engine owns Production and ProductionMachine transitions.
type Engine struct {
	store *store.Store
	log   *zap.Logger
	opts  Options
}

// NewEngine creates an Engine over s.
func NewEngine(s *store.Store, log *zap.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{store: s, log: log, opts: opts}
}

// CreateInput is the request to open a new run.
type CreateInput struct {
	Description string
	Quantity    int
	MachineIDs  []int64
}

// Detail is a run with its assignments and whether it may be finished now.
type Detail struct {
	*model.Production
	CanFinish bool `json:"can_finish"`
}

const maxDescriptionLength = 255

// Create opens a run in STANDBY with one STANDBY assignment per machine.
// Machines are re-validated under lock: each must be live, owned and not busy.
func (e *Engine) Create(ctx context.Context, ownerID int64, in CreateInput) (*model.Production, error) {
	machineIDs := dedupe(in.MachineIDs)
	if len(machineIDs) == 0 {
		return nil, e.reject("create", apperr.New(apperr.EmptyMachineSet, "at least one machine is required"))
	}
	if in.Quantity <= 0 {
		return nil, e.reject("create", apperr.New(apperr.InvalidQuantity, "quantity must be a positive integer, got %d", in.Quantity))
	}
	description := strings.TrimSpace(in.Description)
	if description == "" || len(description) > maxDescriptionLength {
		return nil, e.reject("create", apperr.New(apperr.InvalidInput, "description must be 1 to %d characters", maxDescriptionLength))
	}

	var production *model.Production
	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.LockOwner(ctx, ownerID); err != nil {
			return err
		}

		machines, err := tx.Machines.ForUpdate().ListLive(ctx,
			store.IDIn(machineIDs),
			store.OwnedBy(ownerID),
		)
		if err != nil {
			return err
		}
		byID := make(map[int64]model.Machine, len(machines))
		for _, m := range machines {
			byID[m.ID] = m
		}
		var missing []int64
		for _, id := range machineIDs {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return apperr.New(apperr.MachineNotOwned, "machines %v are not available to this owner", missing).WithMachines(missing)
		}

		busyIDs, err := availability.NewResolver(tx).BusyMachineIDs(ctx, ownerID)
		if err != nil {
			return err
		}
		busy := toSet(busyIDs)
		var conflicting []int64
		for _, id := range machineIDs {
			if busy[id] {
				conflicting = append(conflicting, id)
			}
		}
		if len(conflicting) > 0 {
			return apperr.New(apperr.MachineBusy, "machines %v are assigned to another active production", conflicting).WithMachines(conflicting)
		}

		production = &model.Production{
			Description: description,
			Quantity:    in.Quantity,
			OwnerID:     ownerID,
			Status:      model.ProductionStandby,
		}
		if err := tx.Productions.Create(ctx, production); err != nil {
			return err
		}

		assignments := make([]model.ProductionMachine, len(machineIDs))
		for i, id := range machineIDs {
			assignments[i] = model.ProductionMachine{
				ProductionID: production.ID,
				MachineID:    id,
				Status:       model.AssignmentStandby,
			}
		}
		if err := tx.Assignments.CreateAll(ctx, assignments); err != nil {
			return err
		}
		for i := range assignments {
			assignments[i].Machine = byID[assignments[i].MachineID]
		}
		production.Machines = assignments
		return nil
	})
	if err != nil {
		return nil, e.reject("create", err)
	}

	metrics.ObserveTransition("production", "", string(model.ProductionStandby))
	e.log.Info("production created",
		zap.Int64("owner_id", ownerID),
		zap.Int64("production_id", production.ID),
		zap.Int64s("machine_ids", machineIDs))
	return production, nil
}

// Start moves a STANDBY run to ONGOING and every STANDBY assignment with it.
func (e *Engine) Start(ctx context.Context, ownerID, productionID int64) (*model.Production, error) {
	return e.transitionProduction(ctx, "start", ownerID, productionID, func(p *model.Production, pms []model.ProductionMachine, now time.Time) ([]int, error) {
		if p.Status.IsTerminal() {
			return nil, apperr.New(apperr.AlreadyTerminal, "production %d is already %s", p.ID, p.Status).WithStatus(string(p.Status))
		}
		if p.Status != model.ProductionStandby {
			return nil, apperr.New(apperr.InvalidTransition, "production %d cannot start from %s", p.ID, p.Status).WithStatus(string(p.Status))
		}
		p.SetStatus(model.ProductionOngoing, now)

		var touched []int
		for i := range pms {
			if pms[i].Status == model.AssignmentStandby {
				pms[i].SetStatus(model.AssignmentOngoing, now)
				touched = append(touched, i)
			}
		}
		return touched, nil
	})
}

// Cancel ends a run and forces every non-terminal assignment to CANCELED.
func (e *Engine) Cancel(ctx context.Context, ownerID, productionID int64) (*model.Production, error) {
	return e.transitionProduction(ctx, "cancel", ownerID, productionID, func(p *model.Production, pms []model.ProductionMachine, now time.Time) ([]int, error) {
		if p.Status.IsTerminal() {
			return nil, apperr.New(apperr.AlreadyTerminal, "production %d is already %s", p.ID, p.Status).WithStatus(string(p.Status))
		}
		p.SetStatus(model.ProductionCanceled, now)

		var touched []int
		for i := range pms {
			if !pms[i].Status.IsTerminal() {
				pms[i].SetStatus(model.AssignmentCanceled, now)
				touched = append(touched, i)
			}
		}
		return touched, nil
	})
}

// Finish completes a run once no assignment is STANDBY or ONGOING. Lingering
// HALT assignments are left as they are.
func (e *Engine) Finish(ctx context.Context, ownerID, productionID int64) (*model.Production, error) {
	return e.transitionProduction(ctx, "finish", ownerID, productionID, func(p *model.Production, pms []model.ProductionMachine, now time.Time) ([]int, error) {
		if p.Status.IsTerminal() {
			return nil, apperr.New(apperr.AlreadyTerminal, "production %d is already %s", p.ID, p.Status).WithStatus(string(p.Status))
		}
		if !e.canFinish(pms) {
			active := e.blockingMachines(pms)
			return nil, apperr.New(apperr.MachinesStillActive, "machines %v are still active", active).
				WithStatus(string(p.Status)).
				WithMachines(active)
		}
		p.SetStatus(model.ProductionFinished, now)
		return nil, nil
	})
}

// CanFinish reports whether the run's assignments allow a run-level finish.
func (e *Engine) CanFinish(ctx context.Context, ownerID, productionID int64) (bool, error) {
	p, err := e.findOwned(ctx, e.store, ownerID, productionID)
	if err != nil {
		return false, err
	}
	pms, err := e.store.Assignments.ListLive(ctx, store.Where("production_id = ?", p.ID))
	if err != nil {
		return false, err
	}
	return e.canFinish(pms), nil
}

// Get returns one run with its assignments and machines.
func (e *Engine) Get(ctx context.Context, ownerID, productionID int64) (*Detail, error) {
	p, err := e.store.Productions.FindLiveWhere(ctx,
		store.Where("id = ?", productionID),
		store.OwnedBy(ownerID),
		preloadAssignments,
	)
	if err != nil {
		return nil, err
	}
	return &Detail{Production: p, CanFinish: e.canFinish(p.Machines)}, nil
}

// List returns ownerID's live runs, newest first.
func (e *Engine) List(ctx context.Context, ownerID int64) ([]model.Production, error) {
	return e.store.Productions.ListLive(ctx,
		store.OwnedBy(ownerID),
		store.OrderBy("id DESC"),
		preloadAssignments,
	)
}

// Delete tombstones a terminal run together with all of its assignments.
func (e *Engine) Delete(ctx context.Context, ownerID, productionID int64) error {
	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		p, err := e.lockOwned(ctx, tx, ownerID, productionID)
		if err != nil {
			return err
		}
		if !p.Status.IsTerminal() {
			return apperr.New(apperr.InvalidTransition, "production %d must be finished or canceled before deletion", p.ID).WithStatus(string(p.Status))
		}
		if _, err := tx.Assignments.SoftDeleteWhere(ctx, store.Where("production_id = ?", p.ID)); err != nil {
			return err
		}
		return tx.Productions.SoftDelete(ctx, p.ID)
	})
	if err != nil {
		return e.reject("delete_production", err)
	}
	e.log.Info("production deleted", zap.Int64("owner_id", ownerID), zap.Int64("production_id", productionID))
	return nil
}

// productionStep mutates a locked run and its assignments in memory and
// returns the indexes of the assignments it changed.
type productionStep func(p *model.Production, pms []model.ProductionMachine, now time.Time) ([]int, error)

func (e *Engine) transitionProduction(ctx context.Context, operation string, ownerID, productionID int64, step productionStep) (*model.Production, error) {
	var (
		production *model.Production
		from       model.ProductionStatus
		changes    []assignmentChange
	)
	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		p, err := e.lockOwned(ctx, tx, ownerID, productionID)
		if err != nil {
			return err
		}
		pms, err := lockAssignments(ctx, tx, p.ID)
		if err != nil {
			return err
		}

		from = p.Status
		before := make([]model.AssignmentStatus, len(pms))
		for i := range pms {
			before[i] = pms[i].Status
		}

		touched, err := step(p, pms, e.opts.Now())
		if err != nil {
			return err
		}

		if err := tx.Productions.Save(ctx, p); err != nil {
			return err
		}
		for _, i := range touched {
			if err := tx.Assignments.Save(ctx, &pms[i]); err != nil {
				return err
			}
			changes = append(changes, assignmentChange{id: pms[i].ID, from: before[i], to: pms[i].Status})
		}

		p.Machines = pms
		production = p
		return nil
	})
	if err != nil {
		return nil, e.reject(operation, err)
	}

	metrics.ObserveTransition("production", string(from), string(production.Status))
	for _, c := range changes {
		metrics.ObserveTransition("production_machine", string(c.from), string(c.to))
	}
	e.log.Info("production transitioned",
		zap.Int64("owner_id", ownerID),
		zap.Int64("production_id", production.ID),
		zap.String("from", string(from)),
		zap.String("to", string(production.Status)),
		zap.Int("cascaded", len(changes)))

	if production.Status.IsTerminal() && e.opts.Notifier != nil {
		e.opts.Notifier.ProductionClosed(Event{
			OwnerID:      ownerID,
			ProductionID: production.ID,
			Description:  production.Description,
			Status:       production.Status,
		})
	}
	return production, nil
}

type assignmentChange struct {
	id       int64
	from, to model.AssignmentStatus
}

// canFinish is true iff the set is non-empty and no member is STANDBY or
// ONGOING (nor HALT when the policy says so).
func (e *Engine) canFinish(pms []model.ProductionMachine) bool {
	return len(pms) > 0 && len(e.blockingMachines(pms)) == 0
}

func (e *Engine) blockingMachines(pms []model.ProductionMachine) []int64 {
	var ids []int64
	for _, pm := range pms {
		if pm.Status.IsActive() || (e.opts.HaltBlocksFinish && pm.Status == model.AssignmentHalt) {
			ids = append(ids, pm.MachineID)
		}
	}
	return ids
}

// lockOwned loads a live run of ownerID under a row lock. Runs of other
// owners are reported as NotFound.
func (e *Engine) lockOwned(ctx context.Context, tx *store.Store, ownerID, productionID int64) (*model.Production, error) {
	p, err := tx.Productions.ForUpdate().FindLiveWhere(ctx,
		store.Where("id = ?", productionID),
		store.OwnedBy(ownerID),
	)
	if err != nil {
		return nil, notFoundProduction(productionID, err)
	}
	return p, nil
}

func (e *Engine) findOwned(ctx context.Context, s *store.Store, ownerID, productionID int64) (*model.Production, error) {
	p, err := s.Productions.FindLiveWhere(ctx,
		store.Where("id = ?", productionID),
		store.OwnedBy(ownerID),
	)
	if err != nil {
		return nil, notFoundProduction(productionID, err)
	}
	return p, nil
}

func notFoundProduction(productionID int64, err error) error {
	if apperr.KindOf(err) == apperr.NotFound {
		return apperr.New(apperr.NotFound, "production %d not found", productionID)
	}
	return err
}

func lockAssignments(ctx context.Context, tx *store.Store, productionID int64) ([]model.ProductionMachine, error) {
	return tx.Assignments.ForUpdate().ListLive(ctx,
		store.Where("production_id = ?", productionID),
		store.OrderBy("id"),
	)
}

func preloadAssignments(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Machines", func(db *gorm.DB) *gorm.DB {
			return db.Order("production_machines.id")
		}).
		Preload("Machines.Machine", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		})
}

func (e *Engine) reject(operation string, err error) error {
	if kind := apperr.KindOf(err); kind != "" {
		metrics.ObserveRejection(operation, kind)
		e.log.Debug("production operation rejected", zap.String("operation", operation), zap.Error(err))
		return err
	}
	e.log.Error("production operation failed", zap.String("operation", operation), zap.Error(err))
	return fmt.Errorf("%s: %w", operation, err)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
