package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"production-status-backend/internal/apperr"
	"production-status-backend/internal/model"
	"production-status-backend/internal/store"
	"production-status-backend/internal/testutil"
)

func newRegistry(t *testing.T) (*Registry, *gorm.DB) {
	t.Helper()
	gormDB := testutil.NewDB(t)
	return New(store.New(gormDB), DefaultLimits, zap.NewNop()), gormDB
}

func TestRegistry_RegisterQuota(t *testing.T) {
	testCases := []struct {
		name    string
		premium bool
		limit   int
	}{
		{name: "standard owner", premium: false, limit: 5},
		{name: "premium owner", premium: true, limit: 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			reg, gormDB := newRegistry(t)
			owner := testutil.Owner(t, gormDB, tc.premium)
			testutil.Machines(t, gormDB, owner, tc.limit-1)

			m, err := reg.Register(ctx, owner.ID, "Lathe", "LAST-ONE")
			require.NoError(t, err)
			assert.Equal(t, owner.ID, m.OwnerID)

			var count int64
			gormDB.Model(&model.Machine{}).Where("owner_id = ?", owner.ID).Count(&count)
			assert.Equal(t, int64(tc.limit), count)

			_, err = reg.Register(ctx, owner.ID, "Lathe", "ONE-TOO-MANY")
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.QuotaExceeded, e.Kind)
			assert.Equal(t, tc.limit, e.Limit)
		})
	}
}

func TestRegistry_QuotaCountsLiveMachinesOnly(t *testing.T) {
	ctx := context.Background()
	reg, gormDB := newRegistry(t)
	owner := testutil.Owner(t, gormDB, false)
	machines := testutil.Machines(t, gormDB, owner, 5)

	require.NoError(t, reg.Delete(ctx, owner.ID, machines[0].ID))

	_, err := reg.Register(ctx, owner.ID, "Lathe", "REPLACEMENT")
	assert.NoError(t, err)
}

func TestRegistry_RegisterConcurrentlyNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	reg, gormDB := newRegistry(t)
	owner := testutil.Owner(t, gormDB, false)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reg.Register(ctx, owner.ID, "Drill", fmt.Sprintf("CONC-%d", i))
		}(i)
	}
	wg.Wait()

	var ok, quota int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.QuotaExceeded:
			quota++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, quota)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	reg, gormDB := newRegistry(t)
	alice := testutil.Owner(t, gormDB, false)
	bob := testutil.Owner(t, gormDB, false)

	_, err := reg.Register(ctx, alice.ID, "Lathe", "   ")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	_, err = reg.Register(ctx, alice.ID, "", "SN-X")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	first, err := reg.Register(ctx, alice.ID, "Lathe", " SN-X ")
	require.NoError(t, err)
	assert.Equal(t, "SN-X", first.SerialNumber, "serial is trimmed")

	_, err = reg.Register(ctx, bob.ID, "Lathe", "SN-X")
	assert.Equal(t, apperr.DuplicateSerial, apperr.KindOf(err), "serials are unique system-wide")

	require.NoError(t, reg.Delete(ctx, alice.ID, first.ID))
	_, err = reg.Register(ctx, alice.ID, "Lathe", "SN-X")
	assert.Equal(t, apperr.DuplicateSerial, apperr.KindOf(err), "tombstoned serials cannot be reused")

	_, err = reg.Register(ctx, 999, "Lathe", "SN-Y")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	reg, gormDB := newRegistry(t)
	alice := testutil.Owner(t, gormDB, false)
	bob := testutil.Owner(t, gormDB, false)
	machines := testutil.Machines(t, gormDB, alice, 2)
	run := testutil.Run(t, gormDB, alice, model.ProductionOngoing, machines[:1], model.AssignmentOngoing)

	assert.Equal(t, apperr.NotFound, apperr.KindOf(reg.Delete(ctx, alice.ID, 12345)))
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(reg.Delete(ctx, bob.ID, machines[0].ID)))
	assert.Equal(t, apperr.MachineBusy, apperr.KindOf(reg.Delete(ctx, alice.ID, machines[0].ID)))

	// Once the assignment ends the machine is free to retire.
	require.NoError(t, gormDB.Model(&model.ProductionMachine{}).
		Where("production_id = ?", run.ID).
		Update("status", model.AssignmentFinished).Error)
	require.NoError(t, reg.Delete(ctx, alice.ID, machines[0].ID))

	var tombstoned model.Machine
	require.NoError(t, gormDB.Unscoped().First(&tombstoned, machines[0].ID).Error)
	assert.True(t, tombstoned.DeletedAt.Valid)

	assert.Equal(t, apperr.NotFound, apperr.KindOf(reg.Delete(ctx, alice.ID, machines[0].ID)), "deleted machines are no longer visible")
}

func TestRegistry_List(t *testing.T) {
	ctx := context.Background()
	reg, gormDB := newRegistry(t)
	owner := testutil.Owner(t, gormDB, false)
	machines := testutil.Machines(t, gormDB, owner, 3)
	testutil.Run(t, gormDB, owner, model.ProductionStandby, machines[1:2])

	views, err := reg.List(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, machines[2].ID, views[0].ID, "newest first")
	assert.False(t, views[0].Busy)
	assert.True(t, views[1].Busy)
	assert.False(t, views[2].Busy)
}
