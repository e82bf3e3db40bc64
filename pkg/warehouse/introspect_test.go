package warehouse

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/database"
)

func TestListTables(t *testing.T) {
	db, mock := newMockDB(t, database.DialectPostgres)
	in := NewIntrospector(db, zap.NewNop())

	mock.ExpectQuery(`SELECT table_name FROM information_schema\.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("crm_deals").
			AddRow("ref_crm_statuses"))

	tables, err := in.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"crm_deals", "ref_crm_statuses"}, tables)
}

func TestTableColumnsWithComments(t *testing.T) {
	db, mock := newMockDB(t, database.DialectPostgres)
	in := NewIntrospector(db, zap.NewNop())

	mock.ExpectQuery(`pg_catalog\.pg_description`).
		WithArgs("crm_deals").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "column_comment"}).
			AddRow("bitrix_id", "character varying", "").
			AddRow("title", "character varying", "Название"))

	cols, err := in.TableColumns(context.Background(), "crm_deals")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "Название", cols[1].Comment)
}

func TestRowCount(t *testing.T) {
	db, mock := newMockDB(t, database.DialectPostgres)
	in := NewIntrospector(db, zap.NewNop())

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema\.tables`).
		WithArgs("crm_deals").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "crm_deals"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, exists, err := in.RowCount(context.Background(), "crm_deals")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(42), count)
}

func TestRowCountMissingTable(t *testing.T) {
	db, mock := newMockDB(t, database.DialectPostgres)
	in := NewIntrospector(db, zap.NewNop())

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema\.tables`).
		WithArgs("crm_quotes").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, exists, err := in.RowCount(context.Background(), "crm_quotes")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnumValuesFilterByEntity(t *testing.T) {
	db, mock := newMockDB(t, database.DialectPostgres)
	in := NewIntrospector(db, zap.NewNop())

	mock.ExpectQuery(`FROM ref_enum_values WHERE field_name = \$1 AND entity_type = \$2`).
		WithArgs("UF_CRM_SOURCE", "deal").
		WillReturnRows(sqlmock.NewRows([]string{"field_name", "entity_type", "item_id", "value"}).
			AddRow("UF_CRM_SOURCE", "deal", "101", "Сайт"))

	values, err := in.EnumValues(context.Background(), "UF_CRM_SOURCE", "deal")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "Сайт", values[0].Value)
}
