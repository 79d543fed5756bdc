package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"production-status-backend/internal/apperr"
	"production-status-backend/internal/metrics"
	"production-status-backend/internal/model"
	"production-status-backend/internal/store"
)

// assignmentOp describes one per-machine transition.
type assignmentOp struct {
	name   string
	target model.AssignmentStatus
	// from restricts the legal sources further than the transition table.
	from []model.AssignmentStatus
	// parentOngoing requires the run itself to be running.
	parentOngoing bool
}

var (
	opStartAssignment = assignmentOp{
		name:          "start_assignment",
		target:        model.AssignmentOngoing,
		from:          []model.AssignmentStatus{model.AssignmentStandby},
		parentOngoing: true,
	}
	opHaltAssignment = assignmentOp{
		name:   "halt_assignment",
		target: model.AssignmentHalt,
	}
	opResumeAssignment = assignmentOp{
		name:          "resume_assignment",
		target:        model.AssignmentOngoing,
		from:          []model.AssignmentStatus{model.AssignmentHalt},
		parentOngoing: true,
	}
	opFinishAssignment = assignmentOp{
		name:   "finish_assignment",
		target: model.AssignmentFinished,
	}
	opCancelAssignment = assignmentOp{
		name:   "cancel_assignment",
		target: model.AssignmentCanceled,
	}
)

// StartAssignment moves a STANDBY assignment of a running production to ONGOING.
func (e *Engine) StartAssignment(ctx context.Context, ownerID, productionID, pmID int64) (*model.ProductionMachine, error) {
	return e.transitionAssignment(ctx, opStartAssignment, ownerID, productionID, pmID)
}

// HaltAssignment pauses a STANDBY or ONGOING assignment without touching the run.
func (e *Engine) HaltAssignment(ctx context.Context, ownerID, productionID, pmID int64) (*model.ProductionMachine, error) {
	return e.transitionAssignment(ctx, opHaltAssignment, ownerID, productionID, pmID)
}

// ResumeAssignment moves a HALT assignment of a running production back to ONGOING.
func (e *Engine) ResumeAssignment(ctx context.Context, ownerID, productionID, pmID int64) (*model.ProductionMachine, error) {
	return e.transitionAssignment(ctx, opResumeAssignment, ownerID, productionID, pmID)
}

// FinishAssignment completes one machine's part of a run. The run is never
// finished as a side effect; callers may consult CanFinish afterwards.
func (e *Engine) FinishAssignment(ctx context.Context, ownerID, productionID, pmID int64) (*model.ProductionMachine, error) {
	return e.transitionAssignment(ctx, opFinishAssignment, ownerID, productionID, pmID)
}

// CancelAssignment cancels one machine's part of a run. The run's status is
// never altered by this call.
func (e *Engine) CancelAssignment(ctx context.Context, ownerID, productionID, pmID int64) (*model.ProductionMachine, error) {
	return e.transitionAssignment(ctx, opCancelAssignment, ownerID, productionID, pmID)
}

func (e *Engine) transitionAssignment(ctx context.Context, op assignmentOp, ownerID, productionID, pmID int64) (*model.ProductionMachine, error) {
	var (
		assignment *model.ProductionMachine
		from       model.AssignmentStatus
	)
	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		p, err := e.lockOwned(ctx, tx, ownerID, productionID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return apperr.New(apperr.ParentTerminal, "production %d is already %s", p.ID, p.Status).WithStatus(string(p.Status))
		}

		pm, err := tx.Assignments.ForUpdate().FindLiveWhere(ctx,
			store.Where("id = ? AND production_id = ?", pmID, p.ID),
		)
		if err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				return apperr.New(apperr.NotFound, "production machine %d not found in production %d", pmID, p.ID)
			}
			return err
		}

		if pm.Status.IsTerminal() {
			return apperr.New(apperr.AlreadyTerminal, "production machine %d is already %s", pm.ID, pm.Status).WithStatus(string(pm.Status))
		}
		if !op.allows(pm.Status) {
			return apperr.New(apperr.InvalidTransition, "production machine %d cannot move from %s to %s", pm.ID, pm.Status, op.target).WithStatus(string(pm.Status))
		}
		if op.parentOngoing && p.Status != model.ProductionOngoing {
			return apperr.New(apperr.InvalidTransition, "production %d has not started", p.ID).WithStatus(string(p.Status))
		}

		from = pm.Status
		pm.SetStatus(op.target, e.opts.Now())
		if err := tx.Assignments.Save(ctx, pm); err != nil {
			return err
		}
		assignment = pm
		return nil
	})
	if err != nil {
		return nil, e.reject(op.name, err)
	}

	metrics.ObserveTransition("production_machine", string(from), string(assignment.Status))
	e.log.Info("production machine transitioned",
		zap.Int64("owner_id", ownerID),
		zap.Int64("production_id", productionID),
		zap.Int64("production_machine_id", assignment.ID),
		zap.String("from", string(from)),
		zap.String("to", string(assignment.Status)),
		zap.Int("working_time", assignment.WorkingTime))
	return assignment, nil
}

func (op assignmentOp) allows(current model.AssignmentStatus) bool {
	if !current.CanTransitionTo(op.target) {
		return false
	}
	if len(op.from) == 0 {
		return true
	}
	for _, s := range op.from {
		if s == current {
			return true
		}
	}
	return false
}
