// Package testutil seeds in-memory databases for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"production-status-backend/internal/db"
	"production-status-backend/internal/model"
)

// NewDB opens a migrated in-memory SQLite database closed at test end.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.OpenSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	return gormDB
}

// Owner inserts a tenant.
func Owner(t *testing.T, gormDB *gorm.DB, premium bool) model.Owner {
	t.Helper()
	owner := model.Owner{Name: "owner", IsPremium: premium}
	require.NoError(t, gormDB.Create(&owner).Error)
	return owner
}

// Machines inserts n machines for owner with unique serial numbers.
func Machines(t *testing.T, gormDB *gorm.DB, owner model.Owner, n int) []model.Machine {
	t.Helper()
	machines := make([]model.Machine, 0, n)
	for i := 0; i < n; i++ {
		m := model.Machine{
			Model:        "Press-200",
			SerialNumber: fmt.Sprintf("SN-%d-%d", owner.ID, i),
			OwnerID:      owner.ID,
		}
		require.NoError(t, gormDB.Omit("Owner").Create(&m).Error)
		machines = append(machines, m)
	}
	return machines
}

// Run inserts a production for owner with one assignment per machine, each in
// the matching status of assignment (STANDBY when the list is shorter).
func Run(t *testing.T, gormDB *gorm.DB, owner model.Owner, status model.ProductionStatus, machines []model.Machine, assignment ...model.AssignmentStatus) model.Production {
	t.Helper()
	p := model.Production{Description: "batch", Quantity: 10, OwnerID: owner.ID, Status: status}
	require.NoError(t, gormDB.Omit("Owner", "Machines").Create(&p).Error)
	for i, m := range machines {
		pmStatus := model.AssignmentStandby
		if i < len(assignment) {
			pmStatus = assignment[i]
		}
		pm := model.ProductionMachine{ProductionID: p.ID, MachineID: m.ID, Status: pmStatus}
		require.NoError(t, gormDB.Omit("Machine").Create(&pm).Error)
		p.Machines = append(p.Machines, pm)
	}
	return p
}
