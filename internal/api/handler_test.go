package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"production-status-backend/config"
	"production-status-backend/internal/lifecycle"
	"production-status-backend/internal/model"
	"production-status-backend/internal/mw"
	"production-status-backend/internal/registry"
	"production-status-backend/internal/store"
	"production-status-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	router *gin.Engine
	db     *gorm.DB
	owner  model.Owner
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gormDB := testutil.NewDB(t)
	s := store.New(gormDB)
	log := zap.NewNop()

	h := NewHandler(s,
		registry.New(s, registry.Limits{Standard: 2, Premium: 4}, log),
		lifecycle.NewEngine(s, log, lifecycle.Options{}),
		&webpush.Options{VAPIDPublicKey: "public-key"},
	)
	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 1}

	return &apiFixture{
		router: NewRouter(h, cfg, log),
		db:     gormDB,
		owner:  testutil.Owner(t, gormDB, false),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, f.owner.ID, method, path, body)
}

func (f *apiFixture) doAs(t *testing.T, owner int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if owner != 0 {
		req.Header.Set(mw.HeaderOwnerID, strconv.FormatInt(owner, 10))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *apiFixture) registerMachine(t *testing.T, serial string) model.Machine {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/machines", gin.H{"model": "Press-200", "serial_number": serial})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Machine](t, w)
}

func TestAPI_RequiresOwner(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.doAs(t, 0, http.MethodGet, "/api/machines", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.doAs(t, 999, http.MethodGet, "/api/machines", nil).Code)
	assert.Equal(t, http.StatusOK, f.doAs(t, 0, http.MethodGet, "/healthz", nil).Code)
}

func TestAPI_Machines(t *testing.T) {
	f := newAPIFixture(t)

	first := f.registerMachine(t, "SN-1")
	assert.Equal(t, f.owner.ID, first.OwnerID)

	w := f.do(t, http.MethodPost, "/api/machines", gin.H{"model": "Press-200", "serial_number": "SN-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_serial", decode[errorResponse](t, w).Error)

	f.registerMachine(t, "SN-2")
	w = f.do(t, http.MethodPost, "/api/machines", gin.H{"model": "Press-200", "serial_number": "SN-3"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[errorResponse](t, w)
	assert.Equal(t, "quota_exceeded", resp.Error)
	assert.Equal(t, 2, resp.Limit)

	w = f.do(t, http.MethodPost, "/api/machines", gin.H{"model": "Press-200"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/machines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]registry.MachineView](t, w), 2)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, fmt.Sprintf("/api/machines/%d", first.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/machines/4242", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/machines/abc", nil).Code)
}

func TestAPI_ProductionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	m1 := f.registerMachine(t, "SN-1")
	m2 := f.registerMachine(t, "SN-2")

	w := f.do(t, http.MethodPost, "/api/productions", gin.H{"description": "gears", "quantity": 10, "machine_ids": []int64{m1.ID, m2.ID}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	run := decode[model.Production](t, w)
	require.Len(t, run.Machines, 2)
	base := fmt.Sprintf("/api/productions/%d", run.ID)

	w = f.do(t, http.MethodPost, "/api/productions", gin.H{"description": "bolts", "quantity": 1, "machine_ids": []int64{m1.ID}})
	assert.Equal(t, http.StatusConflict, w.Code)
	busy := decode[errorResponse](t, w)
	assert.Equal(t, "machine_busy", busy.Error)
	assert.Equal(t, []int64{m1.ID}, busy.MachineIDs)

	w = f.do(t, http.MethodPost, "/api/productions", gin.H{"description": "bolts", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_machine_set", decode[errorResponse](t, w).Error)

	w = f.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":2,"used":2,"available":0,"ongoing_runs":0}`, w.Body.String())

	w = f.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ProductionOngoing, decode[model.Production](t, w).Status)

	w = f.do(t, http.MethodPost, base+"/finish", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "machines_still_active", decode[errorResponse](t, w).Error)

	w = f.do(t, http.MethodGet, base+"/can_finish", nil)
	assert.JSONEq(t, `{"can_finish":false}`, w.Body.String())

	for _, pm := range run.Machines {
		w = f.do(t, http.MethodPost, fmt.Sprintf("%s/machines/%d/finish", base, pm.ID), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, model.AssignmentFinished, decode[model.ProductionMachine](t, w).Status)
	}

	w = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[lifecycle.Detail](t, w).CanFinish)

	w = f.do(t, http.MethodPost, base+"/finish", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ProductionFinished, decode[model.Production](t, w).Status)

	w = f.do(t, http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_terminal", decode[errorResponse](t, w).Error)

	w = f.do(t, http.MethodPost, fmt.Sprintf("%s/machines/%d/halt", base, run.Machines[0].ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "parent_terminal", decode[errorResponse](t, w).Error)

	w = f.do(t, http.MethodGet, "/api/productions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Production](t, w), 1)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, base, nil).Code)
}

func TestAPI_OtherOwnersRunIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	m := f.registerMachine(t, "SN-1")
	w := f.do(t, http.MethodPost, "/api/productions", gin.H{"description": "gears", "quantity": 1, "machine_ids": []int64{m.ID}})
	require.Equal(t, http.StatusCreated, w.Code)
	run := decode[model.Production](t, w)

	intruder := testutil.Owner(t, f.db, false)
	w = f.doAs(t, intruder.ID, http.MethodPost, fmt.Sprintf("/api/productions/%d/cancel", run.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.doAs(t, intruder.ID, http.MethodDelete, fmt.Sprintf("/api/machines/%d", m.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPI_Subscriptions(t *testing.T) {
	f := newAPIFixture(t)
	endpoint := "https://push.example.com/abc"

	w := f.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "key2", "auth": "secret2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var stored model.PushSubscription
	require.NoError(t, f.db.First(&stored, "endpoint = ?", endpoint).Error)
	assert.Equal(t, "key2", stored.P256DH)
	assert.Equal(t, f.owner.ID, stored.OwnerID)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/subscriptions", nil).Code)

	other := testutil.Owner(t, f.db, false)
	assert.Equal(t, http.StatusNotFound, f.doAs(t, other.ID, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil).Code)

	w = f.doAs(t, other.ID, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "stolen", "auth": "stolen"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode[errorResponse](t, w).Error)
	require.NoError(t, f.db.First(&stored, "endpoint = ?", endpoint).Error)
	assert.Equal(t, f.owner.ID, stored.OwnerID, "an endpoint never moves to another owner")
	assert.Equal(t, "key2", stored.P256DH)

	assert.Equal(t, http.StatusNoContent, f.doAs(t, other.ID, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint}).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil).Code, "another owner's delete is a no-op")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil).Code)
}

func TestAPI_VAPIDPublicKey(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public-key"}`, w.Body.String())
}
