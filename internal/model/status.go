package model

// ProductionStatus is the run-level lifecycle state.
type ProductionStatus string

const (
	ProductionStandby  ProductionStatus = "STANDBY"
	ProductionOngoing  ProductionStatus = "ONGOING"
	ProductionFinished ProductionStatus = "FINISHED"
	ProductionCanceled ProductionStatus = "CANCELED"
)

// productionTransitions lists, per source status, the statuses a run may move to.
// Terminal statuses have no entry.
var productionTransitions = map[ProductionStatus][]ProductionStatus{
	ProductionStandby: {ProductionOngoing, ProductionFinished, ProductionCanceled},
	ProductionOngoing: {ProductionFinished, ProductionCanceled},
}

// IsTerminal reports whether no further transition is accepted.
func (s ProductionStatus) IsTerminal() bool {
	return s == ProductionFinished || s == ProductionCanceled
}

// IsActive reports whether assignments of a run in this status reserve their machines.
func (s ProductionStatus) IsActive() bool {
	return s == ProductionStandby || s == ProductionOngoing
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ProductionStatus) CanTransitionTo(next ProductionStatus) bool {
	for _, candidate := range productionTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AssignmentStatus is the per-machine lifecycle state inside a run.
type AssignmentStatus string

const (
	AssignmentStandby  AssignmentStatus = "STANDBY"
	AssignmentOngoing  AssignmentStatus = "ONGOING"
	AssignmentHalt     AssignmentStatus = "HALT"
	AssignmentFinished AssignmentStatus = "FINISHED"
	AssignmentCanceled AssignmentStatus = "CANCELED"
)

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentStandby: {AssignmentOngoing, AssignmentHalt, AssignmentCanceled},
	AssignmentOngoing: {AssignmentFinished, AssignmentHalt, AssignmentCanceled},
	AssignmentHalt:    {AssignmentOngoing, AssignmentFinished, AssignmentCanceled},
}

// IsTerminal reports whether no further transition is accepted.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentFinished || s == AssignmentCanceled
}

// IsActive reports whether the assignment still blocks a run-level finish.
func (s AssignmentStatus) IsActive() bool {
	return s == AssignmentStandby || s == AssignmentOngoing
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	for _, candidate := range assignmentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
