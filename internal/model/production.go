package model

import "time"

// Production is a manufacturing run reserving a set of the owner's machines.
type Production struct {
	Base
	Description string           `gorm:"size:255;not null" json:"description"`
	Quantity    int              `gorm:"not null" json:"quantity"`
	OwnerID     int64            `gorm:"index;not null" json:"owner_id"`
	Status      ProductionStatus `gorm:"size:16;not null;default:STANDBY;index" json:"status"`
	StartedAt   *time.Time       `json:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at"`
	CanceledAt  *time.Time       `json:"canceled_at"`

	// Associations
	Owner    Owner               `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Machines []ProductionMachine `gorm:"foreignKey:ProductionID" json:"machines,omitempty"`
}

// SetStatus moves the run to next and stamps the matching timestamp
// the first time that status is reached. Legality is checked by the caller.
func (p *Production) SetStatus(next ProductionStatus, now time.Time) {
	p.Status = next
	switch next {
	case ProductionOngoing:
		stampOnce(&p.StartedAt, now)
	case ProductionFinished:
		stampOnce(&p.FinishedAt, now)
	case ProductionCanceled:
		stampOnce(&p.CanceledAt, now)
	}
}

// ProductionMachine assigns one machine to one run.
type ProductionMachine struct {
	Base
	ProductionID int64            `gorm:"not null;uniqueIndex:uniq_production_machine_pair" json:"production_id"`
	MachineID    int64            `gorm:"not null;uniqueIndex:uniq_production_machine_pair;index" json:"machine_id"`
	Status       AssignmentStatus `gorm:"size:16;not null;default:STANDBY;index" json:"status"`
	StartedAt    *time.Time       `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at"`
	CanceledAt   *time.Time       `json:"canceled_at"`
	// WorkingTime is in whole minutes, derived on reaching FINISHED or CANCELED.
	WorkingTime int `gorm:"not null;default:0" json:"working_time"`

	// Associations
	Machine Machine `gorm:"constraint:OnDelete:RESTRICT" json:"machine"`
}

// TableName keeps the table name stable regardless of GORM's pluralizer.
func (ProductionMachine) TableName() string {
	return "production_machines"
}

// SetStatus moves the assignment to next, stamps the matching timestamp once,
// and recomputes WorkingTime when next is terminal.
func (pm *ProductionMachine) SetStatus(next AssignmentStatus, now time.Time) {
	pm.Status = next
	switch next {
	case AssignmentOngoing:
		stampOnce(&pm.StartedAt, now)
	case AssignmentFinished:
		stampOnce(&pm.FinishedAt, now)
	case AssignmentCanceled:
		stampOnce(&pm.CanceledAt, now)
	}
	if next.IsTerminal() {
		pm.WorkingTime = WorkingMinutes(pm.StartedAt, pm.endFor(next), pm.WorkingTime)
	}
}

func (pm *ProductionMachine) endFor(status AssignmentStatus) *time.Time {
	if status == AssignmentFinished {
		return pm.FinishedAt
	}
	return pm.CanceledAt
}

// WorkingMinutes returns the whole minutes between start and end.
// An unset start yields 0; an unset end, or one before start, keeps current.
func WorkingMinutes(start, end *time.Time, current int) int {
	if start == nil {
		return 0
	}
	if end == nil || end.Before(*start) {
		return current
	}
	minutes := int(end.Sub(*start) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

func stampOnce(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}
