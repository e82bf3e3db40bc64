package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
)

func TestColumnType(t *testing.T) {
	cases := []struct {
		bitrixType string
		multiple   bool
		want       string
	}{
		{"string", false, "VARCHAR(255)"},
		{"char", false, "VARCHAR(255)"},
		{"url", false, "VARCHAR(255)"},
		{"enumeration", false, "VARCHAR(255)"},
		{"crm_status", false, "VARCHAR(255)"},
		{"crm", false, "VARCHAR(255)"},
		{"iblock_element", false, "VARCHAR(255)"},
		{"text", false, "TEXT"},
		{"address", false, "TEXT"},
		{"integer", false, "BIGINT"},
		{"double", false, "FLOAT"},
		{"money", false, "FLOAT"},
		{"datetime", false, "TIMESTAMP"},
		{"date", false, "TIMESTAMP"},
		{"boolean", false, "BOOLEAN"},
		{"something_new", false, "VARCHAR(255)"},
		// multi-valued fields always store a JSON array
		{"string", true, "TEXT"},
		{"integer", true, "TEXT"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ColumnType(tc.bitrixType, tc.multiple), tc.bitrixType)
	}
}

func TestColumnTypeCRMPrefixException(t *testing.T) {
	// "crm_status" is the type of a field referencing a status dictionary,
	// not a status table: plain VARCHAR.
	assert.Equal(t, "VARCHAR(255)", ColumnType("crm_company", false))
}

func TestMapFieldsEmpty(t *testing.T) {
	assert.Empty(t, MapFields(nil, nil))
}

func TestMapFieldsUserOverridesStandard(t *testing.T) {
	standard := map[string]bitrix.FieldMeta{
		"TITLE":       {ID: "TITLE", Type: "string", Title: "Название"},
		"UF_CRM_FOO":  {ID: "UF_CRM_FOO", Type: "string", Title: "old label"},
		"OPPORTUNITY": {ID: "OPPORTUNITY", Type: "double", Title: "Сумма"},
	}
	user := []bitrix.FieldMeta{
		{ID: "UF_CRM_FOO", Type: "enumeration", Title: "Источник", IsMultiple: true},
	}

	cols := MapFields(standard, user)
	require.Len(t, cols, 3)

	byName := map[string]Column{}
	for _, c := range cols {
		byName[c.Name] = c
	}

	assert.Equal(t, "VARCHAR(255)", byName["title"].SQLType)
	assert.Equal(t, "FLOAT", byName["opportunity"].SQLType)
	// user field entry won: multiple enumeration → TEXT, new label
	assert.Equal(t, "TEXT", byName["uf_crm_foo"].SQLType)
	assert.Equal(t, "Источник", byName["uf_crm_foo"].Comment)
}

func TestMapFieldsStandardColumnsSorted(t *testing.T) {
	cols := MapFields(map[string]bitrix.FieldMeta{
		"TITLE":       {ID: "TITLE", Type: "string"},
		"ASSIGNED_BY": {ID: "ASSIGNED_BY", Type: "integer"},
		"OPPORTUNITY": {ID: "OPPORTUNITY", Type: "double"},
	}, nil)
	require.Len(t, cols, 3)
	assert.Equal(t, "assigned_by", cols[0].Name)
	assert.Equal(t, "opportunity", cols[1].Name)
	assert.Equal(t, "title", cols[2].Name)
}

func TestMapFieldsLowercasesNames(t *testing.T) {
	cols := MapFields(map[string]bitrix.FieldMeta{
		"DATE_MODIFY": {ID: "DATE_MODIFY", Type: "datetime"},
	}, nil)
	require.Len(t, cols, 1)
	assert.Equal(t, "date_modify", cols[0].Name)
}

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"deal":               "crm_deals",
		"contact":            "crm_contacts",
		"lead":               "crm_leads",
		"company":            "crm_companies",
		"user":               "bitrix_users",
		"task":               "bitrix_tasks",
		"call":               "bitrix_calls",
		"stage_history_deal": "stage_history_deals",
		"stage_history_lead": "stage_history_leads",
	}
	for entity, want := range cases {
		assert.Equal(t, want, TableName(entity), entity)
	}
}
