package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PrintStation/app/agent"
	"PrintStation/app/database"
	"PrintStation/app/escpos"
)

func statusServerFixture(t *testing.T) *StatusAPIServer {
	t.Helper()

	require.NoError(t, database.InitializeLocalDB(filepath.Join(t.TempDir(), "station.db")))
	localDB := database.GetLocalDB()
	t.Cleanup(func() { localDB.Close() })

	state := NewStationState()
	state.SetActingAsPrintServer(true)

	client := agent.NewClient("ws://127.0.0.1:1", nil, 0)

	return NewStatusAPIServer(":0", state, StaticLease(true), client, localDB, nil, testLogger(), "tenant-1", "station-test")
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestStatusServerHealth(t *testing.T) {
	s := statusServerFixture(t)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestStatusServerStatusSnapshot(t *testing.T) {
	s := statusServerFixture(t)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tenant-1", data["tenant_id"])
	assert.Equal(t, "station-test", data["device_id"])
	assert.Equal(t, true, data["acting_as_print_server"])
	assert.Equal(t, false, data["transport_connected"])
	assert.Equal(t, true, data["lease_held"])
}

func TestStatusServerStatusRejectsPost(t *testing.T) {
	s := statusServerFixture(t)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/api/v1/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusServerTestPrintRequiresPrinter(t *testing.T) {
	s := statusServerFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test-print", strings.NewReader(`{}`))
	s.handleTestPrint(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Contains(t, resp.Error, "printer")
}

func TestStatusServerTestPrintRejectsBadBody(t *testing.T) {
	s := statusServerFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test-print", strings.NewReader(`not json`))
	s.handleTestPrint(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusServerPrintLog(t *testing.T) {
	s := statusServerFixture(t)

	require.NoError(t, s.localDB.RecordPrint(database.PrintLogEntry{
		JobID:       42,
		PrintType:   "kitchen_ticket",
		PrinterName: "Kitchen-1",
		Success:     true,
	}))

	rec := httptest.NewRecorder()
	s.handlePrintLog(rec, httptest.NewRequest(http.MethodGet, "/api/v1/print-log", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["count"])
}

func TestStatusServerPrintLogLimitValidation(t *testing.T) {
	s := statusServerFixture(t)

	rec := httptest.NewRecorder()
	s.handlePrintLog(rec, httptest.NewRequest(http.MethodGet, "/api/v1/print-log?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handlePrintLog(rec, httptest.NewRequest(http.MethodGet, "/api/v1/print-log?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusServerReconcileWithoutListener(t *testing.T) {
	s := statusServerFixture(t)

	rec := httptest.NewRecorder()
	s.handleReconcile(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildTestTicketContent(t *testing.T) {
	doc := buildTestTicket(escpos.DefaultOptions(), "station-test")
	raw := doc.Raw()

	assert.Contains(t, raw, "TESTE DE IMPRESSAO")
	assert.Contains(t, raw, "station-test")
	assert.Contains(t, raw, "80mm")
}
