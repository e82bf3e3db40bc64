// Package mapper translates Bitrix field vocabulary into warehouse column
// definitions and owns the entity → table naming convention.
package mapper

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
)

// Column is one warehouse column derived from a Bitrix field.
type Column struct {
	Name    string // normalized: lower(field_id)
	SQLType string
	Comment string // original Bitrix field title
}

// exact Bitrix type → column type. Prefixed families (crm_*, iblock_*) are
// handled separately; anything unknown defaults to VARCHAR(255).
var typeMap = map[string]string{
	"string":          "VARCHAR(255)",
	"char":            "VARCHAR(255)",
	"url":             "VARCHAR(255)",
	"file":            "VARCHAR(255)",
	"disk_file":       "VARCHAR(255)",
	"employee":        "VARCHAR(255)",
	"enumeration":     "VARCHAR(255)",
	"resourcebooking": "VARCHAR(255)",
	"hlblock":         "VARCHAR(255)",
	"video":           "VARCHAR(255)",
	"text":            "TEXT",
	"address":         "TEXT",
	"integer":         "BIGINT",
	"double":          "FLOAT",
	"float":           "FLOAT",
	"money":           "FLOAT",
	"datetime":        "TIMESTAMP",
	"date":            "TIMESTAMP",
	"boolean":         "BOOLEAN",
}

// ColumnType maps a Bitrix field type to a warehouse column type.
// Multi-valued fields always store a JSON array in TEXT.
func ColumnType(bitrixType string, isMultiple bool) string {
	if isMultiple {
		return "TEXT"
	}
	t := strings.ToLower(bitrixType)
	if strings.HasPrefix(t, "crm_") || strings.HasPrefix(t, "iblock_") {
		return "VARCHAR(255)"
	}
	if sqlType, ok := typeMap[t]; ok {
		return sqlType
	}
	return "VARCHAR(255)"
}

// ColumnName normalizes a Bitrix field ID to its column name.
func ColumnName(fieldID string) string {
	return strings.ToLower(fieldID)
}

// MapFields merges standard and user field metadata into an ordered column
// list. User-field entries override standard entries with the same
// normalized name.
func MapFields(standard map[string]bitrix.FieldMeta, user []bitrix.FieldMeta) []Column {
	byName := make(map[string]Column, len(standard)+len(user))
	order := make([]string, 0, len(standard)+len(user))

	add := func(meta bitrix.FieldMeta) {
		name := ColumnName(meta.ID)
		if name == "" {
			return
		}
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = Column{
			Name:    name,
			SQLType: ColumnType(meta.Type, meta.IsMultiple),
			Comment: meta.Title,
		}
	}

	// Standard fields first in sorted order for deterministic DDL.
	for _, id := range sortedKeys(standard) {
		add(standard[id])
	}
	for _, meta := range user {
		add(meta)
	}

	cols := make([]Column, 0, len(order))
	for _, name := range order {
		cols = append(cols, byName[name])
	}
	return cols
}

func sortedKeys(m map[string]bitrix.FieldMeta) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TableName returns the warehouse table for an entity type: crm_<plural>
// for CRM entities, fixed names for the rest.
func TableName(entityType string) string {
	switch entityType {
	case bitrix.EntityUser:
		return "bitrix_users"
	case bitrix.EntityTask:
		return "bitrix_tasks"
	case bitrix.EntityCall:
		return "bitrix_calls"
	case bitrix.EntityStageHistoryDeal:
		return "stage_history_deals"
	case bitrix.EntityStageHistoryLead:
		return "stage_history_leads"
	default:
		return "crm_" + inflection.Plural(entityType)
	}
}
