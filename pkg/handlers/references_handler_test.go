package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/services/syncqueue"
	"github.com/brightpulse/bitrix-warehouse/pkg/warehouse"
)

func newReferencesMux(queue *fakeQueue) *http.ServeMux {
	mux := http.NewServeMux()
	counts := &fakeCounter{counts: map[string]int64{}}
	NewReferencesHandler(queue, counts, &fakeLogRepo{}, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestReferenceSyncOne(t *testing.T) {
	queue := &fakeQueue{}
	mux := newReferencesMux(queue)

	req := httptest.NewRequest(http.MethodPost, "/references/sync/crm_status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, syncqueue.TaskReferenceSync, queue.tasks[0].Type)
	assert.Equal(t, "crm_status", queue.tasks[0].EntityType)
	assert.Equal(t, syncqueue.PriorityReference, queue.tasks[0].Priority)
}

func TestReferenceSyncOneUnknown(t *testing.T) {
	mux := newReferencesMux(&fakeQueue{})
	req := httptest.NewRequest(http.MethodPost, "/references/sync/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReferenceSyncOneAutoOnly(t *testing.T) {
	mux := newReferencesMux(&fakeQueue{})
	req := httptest.NewRequest(http.MethodPost, "/references/sync/enum_values", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferenceSyncAll(t *testing.T) {
	queue := &fakeQueue{}
	mux := newReferencesMux(queue)

	req := httptest.NewRequest(http.MethodPost, "/references/sync-all", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, syncqueue.TaskReferenceSyncAll, queue.tasks[0].Type)
}

func TestReferenceStatus(t *testing.T) {
	mux := http.NewServeMux()
	counts := &fakeCounter{counts: map[string]int64{"ref_crm_currencies": 3}}
	NewReferencesHandler(&fakeQueue{}, counts, &fakeLogRepo{}, zap.NewNop()).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/references/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["references"], 4)

	byName := map[string]map[string]any{}
	for _, entry := range body["references"] {
		byName[entry["name"].(string)] = entry
	}
	assert.Equal(t, float64(3), byName["crm_currency"]["row_count"])
	assert.Equal(t, false, byName["crm_status"]["exists"])
}

func newWarehouseMux(in *fakeIntrospector) *http.ServeMux {
	mux := http.NewServeMux()
	NewWarehouseHandler(in, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestWarehouseTables(t *testing.T) {
	mux := newWarehouseMux(&fakeIntrospector{tables: []string{"crm_deals", "bitrix_users"}})
	req := httptest.NewRequest(http.MethodGet, "/warehouse/tables", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"crm_deals", "bitrix_users"}, body["tables"])
}

func TestWarehouseColumnsUnknownTable(t *testing.T) {
	mux := newWarehouseMux(&fakeIntrospector{columns: map[string][]warehouse.ColumnInfo{}})
	req := httptest.NewRequest(http.MethodGet, "/warehouse/tables/nope/columns", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWarehouseColumns(t *testing.T) {
	mux := newWarehouseMux(&fakeIntrospector{columns: map[string][]warehouse.ColumnInfo{
		"crm_deals": {{Name: "bitrix_id", DataType: "character varying"}},
	}})
	req := httptest.NewRequest(http.MethodGet, "/warehouse/tables/crm_deals/columns", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWarehouseEnums(t *testing.T) {
	mux := newWarehouseMux(&fakeIntrospector{values: []warehouse.EnumValue{
		{FieldName: "UF_CRM_SOURCE", EntityType: "deal", ItemID: "101", Value: "Сайт"},
	}})
	req := httptest.NewRequest(http.MethodGet, "/warehouse/enums/UF_CRM_SOURCE?entity_type=deal", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Values []warehouse.EnumValue `json:"values"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Values, 1)
}
