package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frotaops/fleet-engine/api"
	"github.com/frotaops/fleet-engine/fleet"
	store "github.com/frotaops/fleet-engine/fleet/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	router http.Handler
	mem    *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	h := api.NewHandler(mem, nil)
	return &testServer{router: api.NewRouter(h), mem: mem}
}

// do issues a request against the router. A non-empty role is sent as the
// X-Actor-Role header.
func (ts *testServer) do(t *testing.T, method, path string, body any, role string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func (ts *testServer) createVehicle(t *testing.T, plate string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/vehicles", map[string]any{
		"plate": plate, "model": "Onix 1.0", "initial_mileage": 1000,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[api.VehicleDTO](t, w).ID
}

func (ts *testServer) createContract(t *testing.T, vehicleID, start, end string) api.ContractDTO {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/contracts", map[string]any{
		"customer_id": "cust-1",
		"vehicles":    []map[string]string{{"vehicle_id": vehicleID, "daily_rate": "150.00"}},
		"start_date":  start,
		"end_date":    end,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[api.ContractDTO](t, w)
}

// =============================================================================
// VEHICLES
// =============================================================================

func TestVehicleLifecycle(t *testing.T) {
	ts := newTestServer(t)

	id := ts.createVehicle(t, "BRA-2E19")

	w := ts.do(t, http.MethodGet, "/api/vehicles/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[api.VehicleDTO](t, w)
	assert.Equal(t, "BRA-2E19", got.Plate)
	assert.Equal(t, string(fleet.VehicleAvailable), got.Status)
	assert.Equal(t, 1000, got.Mileage)

	w = ts.do(t, http.MethodGet, "/api/vehicles", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]api.VehicleDTO](t, w), 1)

	w = ts.do(t, http.MethodGet, "/api/vehicles/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordReadingUpdatesMileage(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")

	w := ts.do(t, http.MethodPost, "/api/vehicles/"+id+"/readings",
		map[string]any{"value": 1250, "source": "inspection"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1250, decodeBody[api.MileageDTO](t, w).Total)

	w = ts.do(t, http.MethodGet, "/api/vehicles/"+id+"/mileage", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1250, decodeBody[api.MileageDTO](t, w).Total)

	// Unknown source is rejected before anything is written.
	w = ts.do(t, http.MethodPost, "/api/vehicles/"+id+"/readings",
		map[string]any{"value": 1300, "source": "odometer-photo"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// CONTRACTS
// =============================================================================

func TestBookingConflictReturns409(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")

	ts.createContract(t, id, "2025-01-01", "2025-01-10")

	w := ts.do(t, http.MethodPost, "/api/contracts", map[string]any{
		"customer_id": "cust-2",
		"vehicles":    []map[string]string{{"vehicle_id": id, "daily_rate": "99.00"}},
		"start_date":  "2025-01-05",
		"end_date":    "2025-01-15",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestConflictProbeDoesNotWrite(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")
	booked := ts.createContract(t, id, "2025-01-01", "2025-01-10")

	w := ts.do(t, http.MethodPost, "/api/contracts/check-conflicts", map[string]any{
		"vehicle_ids": []string{id},
		"start_date":  "2025-01-08",
		"end_date":    "2025-01-12",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	probe := decodeBody[api.ConflictCheckDTO](t, w)
	assert.True(t, probe.HasConflict)
	require.Len(t, probe.Conflicts, 1)
	assert.Equal(t, booked.ID, probe.Conflicts[0].ID)
}

func TestCancelContract(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")
	c := ts.createContract(t, id, "2025-01-01", "2025-01-10")

	w := ts.do(t, http.MethodPost, "/api/contracts/"+c.ID+"/cancel", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/contracts/"+c.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(fleet.ContractCanceled), decodeBody[api.ContractDTO](t, w).Status)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestEntryStatusTransitionRoleGating(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")

	w := ts.do(t, http.MethodPost, "/api/entries", map[string]any{
		"category": "Diversos", "vehicle_id": id,
		"description": "lavagem", "amount": "80.00", "date": "2025-02-10",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decodeBody[api.EntryResponse](t, w).Entry

	// Missing role header defaults to operator, which cannot authorize.
	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/status",
		map[string]string{"status": "Autorizado"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/status",
		map[string]string{"status": "Autorizado"}, "manager")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Autorizado", decodeBody[api.EntryDTO](t, w).Status)

	// Pago is terminal; going back is a validation failure.
	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/status",
		map[string]string{"status": "Pago"}, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/status",
		map[string]string{"status": "Pendente"}, "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown status value.
	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/status",
		map[string]string{"status": "Aprovadíssimo"}, "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDamageFlowResolvesAmount(t *testing.T) {
	// GIVEN: an inspection damage event (to-define amount)
	// WHEN: the repair cost is quantified
	// THEN: the amount is resolved exactly once

	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")

	w := ts.do(t, http.MethodPost, "/api/events/damage", map[string]any{
		"vehicle_id": id, "date": "2025-02-01", "severity": "grave",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decodeBody[api.EntryResponse](t, w).Entry
	assert.True(t, entry.ToDefine)
	assert.Equal(t, "Avaria", entry.Category)

	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/resolve-amount",
		map[string]string{"amount": "450.00"}, "manager")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "450.00", decodeBody[api.EntryDTO](t, w).Amount)

	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/resolve-amount",
		map[string]string{"amount": "999.00"}, "manager")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteEntry(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")

	w := ts.do(t, http.MethodPost, "/api/entries", map[string]any{
		"category": "Diversos", "vehicle_id": id,
		"description": "lavagem", "amount": "80.00", "date": "2025-02-10",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	entry := decodeBody[api.EntryResponse](t, w).Entry

	// Operators cannot delete.
	w = ts.do(t, http.MethodDelete, "/api/entries/"+entry.ID, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A referenced entry degrades to deactivation.
	ts.mem.Reference(fleet.EntryID(entry.ID))
	w = ts.do(t, http.MethodDelete, "/api/entries/"+entry.ID, nil, "admin")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeBody[api.DeleteEntryDTO](t, w)
	assert.False(t, result.Deleted)
	assert.True(t, result.Deactivated)
}

func TestAutomaticEntryAssociatesWithActiveContract(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")
	c := ts.createContract(t, id, "2025-02-01", "2025-02-28")

	w := ts.do(t, http.MethodPost, "/api/events/parts", map[string]any{
		"vehicle_id": id, "date": "2025-02-10",
		"description": "pastilha de freio", "cost": "320.00",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decodeBody[api.EntryResponse](t, w).Entry
	require.NotNil(t, entry.ContractID)
	assert.Equal(t, c.ID, *entry.ContractID)
}

// =============================================================================
// BILLING
// =============================================================================

func TestBillingGeneration(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createVehicle(t, "BRA-2E19")
	ts.createContract(t, id, "2025-02-01", "2025-02-28")

	w := ts.do(t, http.MethodPost, "/api/events/parts", map[string]any{
		"vehicle_id": id, "date": "2025-02-10",
		"description": "pastilha de freio", "cost": "320.00",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	entry := decodeBody[api.EntryResponse](t, w).Entry

	w = ts.do(t, http.MethodPost, "/api/entries/"+entry.ID+"/status",
		map[string]string{"status": "Autorizado"}, "manager")
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/billing/generate", map[string]any{}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	run := decodeBody[api.BillingRunDTO](t, w)
	require.Len(t, run.Entries, 1)
	assert.Equal(t, 1, run.Sources)
	assert.Equal(t, "320.00", run.Entries[0].Amount)
	assert.Equal(t, "Cobrança", run.Entries[0].Category)

	w = ts.do(t, http.MethodGet, "/api/billing/collection", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody[[]api.EntryDTO](t, w))
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarioLoading(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/scenarios", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody[[]api.ScenarioDTO](t, w))

	w = ts.do(t, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": "frota-basica"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/vehicles", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]api.VehicleDTO](t, w), 3)

	w = ts.do(t, http.MethodGet, "/api/scenarios/current", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "frota-basica", decodeBody[api.ScenarioDTO](t, w).ID)

	w = ts.do(t, http.MethodPost, "/api/scenarios/load",
		map[string]string{"scenario_id": "nope"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
