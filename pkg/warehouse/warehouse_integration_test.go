//go:build integration

package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/mapper"
	"github.com/brightpulse/bitrix-warehouse/pkg/testhelpers"
)

type warehouseTestContext struct {
	t            *testing.T
	builder      *TableBuilder
	writer       *Writer
	introspector *Introspector
}

func setupWarehouseTest(t *testing.T) *warehouseTestContext {
	t.Helper()

	wh := testhelpers.GetWarehouseDB(t)
	logger := zap.NewNop()

	return &warehouseTestContext{
		t:            t,
		builder:      NewTableBuilder(wh.DB, logger),
		writer:       NewWriter(wh.DB, logger),
		introspector: NewIntrospector(wh.DB, logger),
	}
}

func TestEnsureTableCreatesAndExtends(t *testing.T) {
	tc := setupWarehouseTest(t)
	ctx := context.Background()

	cols := []mapper.Column{
		{Name: "title", SQLType: "TEXT", Comment: "Название"},
		{Name: "opportunity", SQLType: "NUMERIC(18,2)", Comment: "Сумма"},
	}
	require.NoError(t, tc.builder.EnsureTable(ctx, "it_crm_deals", cols))

	exists, err := tc.builder.TableExists(ctx, "it_crm_deals")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := tc.builder.GetTableColumns(ctx, "it_crm_deals")
	require.NoError(t, err)
	assert.Contains(t, names, "record_id")
	assert.Contains(t, names, "bitrix_id")
	assert.Contains(t, names, "title")
	assert.Contains(t, names, "created_at")

	// Re-running with an extra column alters the table instead of failing.
	cols = append(cols, mapper.Column{Name: "stage_id", SQLType: "VARCHAR(255)", Comment: "Стадия"})
	require.NoError(t, tc.builder.EnsureTable(ctx, "it_crm_deals", cols))

	names, err = tc.builder.GetTableColumns(ctx, "it_crm_deals")
	require.NoError(t, err)
	assert.Contains(t, names, "stage_id")
}

func TestUpsertRecordsIsIdempotentOnBitrixID(t *testing.T) {
	tc := setupWarehouseTest(t)
	ctx := context.Background()

	cols := []mapper.Column{
		{Name: "title", SQLType: "TEXT", Comment: "Название"},
		{Name: "opportunity", SQLType: "NUMERIC(18,2)", Comment: "Сумма"},
	}
	require.NoError(t, tc.builder.EnsureTable(ctx, "it_upsert_deals", cols))

	records := []bitrix.Record{
		{"ID": "101", "TITLE": "First", "OPPORTUNITY": "1500.50"},
		{"ID": "102", "TITLE": "Second", "OPPORTUNITY": "0"},
	}
	n, err := tc.writer.UpsertRecords(ctx, "it_upsert_deals", records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same IDs again with changed values must update, not duplicate.
	records[0]["TITLE"] = "First renamed"
	n, err = tc.writer.UpsertRecords(ctx, "it_upsert_deals", records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	wh := testhelpers.GetWarehouseDB(t)
	var count int
	require.NoError(t, wh.DB.GetContext(ctx, &count, "SELECT COUNT(*) FROM it_upsert_deals"))
	assert.Equal(t, 2, count)

	var title string
	require.NoError(t, wh.DB.GetContext(ctx, &title,
		"SELECT title FROM it_upsert_deals WHERE bitrix_id = '101'"))
	assert.Equal(t, "First renamed", title)
}

func TestDeleteByBitrixID(t *testing.T) {
	tc := setupWarehouseTest(t)
	ctx := context.Background()

	require.NoError(t, tc.builder.EnsureTable(ctx, "it_delete_deals", []mapper.Column{
		{Name: "title", SQLType: "TEXT", Comment: "Название"},
	}))
	_, err := tc.writer.UpsertRecords(ctx, "it_delete_deals", []bitrix.Record{
		{"ID": "7", "TITLE": "Gone soon"},
	})
	require.NoError(t, err)

	deleted, err := tc.writer.DeleteByBitrixID(ctx, "it_delete_deals", "7")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = tc.writer.DeleteByBitrixID(ctx, "it_delete_deals", "7")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestReferenceTableUpsertWithCompositeKey(t *testing.T) {
	tc := setupWarehouseTest(t)
	ctx := context.Background()

	cols := []RefColumn{
		{Name: "status_id", SQLType: "VARCHAR(255)"},
		{Name: "entity_id", SQLType: "VARCHAR(255)"},
		{Name: "name", SQLType: "TEXT", Nullable: true},
	}
	key := []string{"status_id", "entity_id"}
	require.NoError(t, tc.builder.EnsureReferenceTable(ctx, "it_ref_statuses", cols, key))

	rows := []map[string]any{
		{"status_id": "NEW", "entity_id": "DEAL_STAGE", "name": "Новая"},
		{"status_id": "WON", "entity_id": "DEAL_STAGE", "name": "Успех"},
	}
	n, err := tc.writer.UpsertRecordsWithKey(ctx, "it_ref_statuses", rows, key)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows[1]["name"] = "Сделка успешна"
	n, err = tc.writer.UpsertRecordsWithKey(ctx, "it_ref_statuses", rows, key)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	wh := testhelpers.GetWarehouseDB(t)
	var count int
	require.NoError(t, wh.DB.GetContext(ctx, &count, "SELECT COUNT(*) FROM it_ref_statuses"))
	assert.Equal(t, 2, count)
}

func TestIntrospectorListsTablesAndComments(t *testing.T) {
	tc := setupWarehouseTest(t)
	ctx := context.Background()

	require.NoError(t, tc.builder.EnsureTable(ctx, "it_introspect_deals", []mapper.Column{
		{Name: "title", SQLType: "TEXT", Comment: "Название сделки"},
	}))

	tables, err := tc.introspector.ListTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "it_introspect_deals")

	columns, err := tc.introspector.TableColumns(ctx, "it_introspect_deals")
	require.NoError(t, err)

	byName := map[string]ColumnInfo{}
	for _, c := range columns {
		byName[c.Name] = c
	}
	require.Contains(t, byName, "title")
	assert.Equal(t, "Название сделки", byName["title"].Comment)
}
