package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/warehouse"
)

// WarehouseIntrospector answers schema questions for the introspection API.
type WarehouseIntrospector interface {
	ListTables(ctx context.Context) ([]string, error)
	TableColumns(ctx context.Context, table string) ([]warehouse.ColumnInfo, error)
	EnumValues(ctx context.Context, fieldName, entityType string) ([]warehouse.EnumValue, error)
}

// WarehouseHandler exposes the warehouse schema to analytics consumers.
type WarehouseHandler struct {
	introspector WarehouseIntrospector
	logger       *zap.Logger
}

// NewWarehouseHandler creates a WarehouseHandler.
func NewWarehouseHandler(introspector WarehouseIntrospector, logger *zap.Logger) *WarehouseHandler {
	return &WarehouseHandler{introspector: introspector, logger: logger}
}

// RegisterRoutes registers the warehouse handler's routes on the given mux.
func (h *WarehouseHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /warehouse/tables", h.Tables)
	mux.HandleFunc("GET /warehouse/tables/{table}/columns", h.Columns)
	mux.HandleFunc("GET /warehouse/enums/{field}", h.Enums)
}

// Tables handles GET /warehouse/tables.
func (h *WarehouseHandler) Tables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.introspector.ListTables(r.Context())
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// Columns handles GET /warehouse/tables/{table}/columns.
func (h *WarehouseHandler) Columns(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	columns, err := h.introspector.TableColumns(r.Context(), table)
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if len(columns) == 0 {
		_ = ErrorResponse(w, http.StatusNotFound, "unknown_table", "no such table "+table)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"table":   table,
		"columns": columns,
	})
}

// Enums handles GET /warehouse/enums/{field} with an optional entity_type
// query parameter.
func (h *WarehouseHandler) Enums(w http.ResponseWriter, r *http.Request) {
	field := r.PathValue("field")
	values, err := h.introspector.EnumValues(r.Context(), field, r.URL.Query().Get("entity_type"))
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"field_name": field,
		"values":     values,
	})
}
