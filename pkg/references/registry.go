// Package references synchronizes Bitrix dictionaries (statuses, deal
// categories, currencies) into fixed-schema reference tables and captures
// enumeration values for user fields.
package references

import (
	"github.com/brightpulse/bitrix-warehouse/pkg/warehouse"
)

// Definition declares one reference table: where its rows come from and
// which columns form the natural key.
type Definition struct {
	Name      string
	Table     string
	Method    string // list endpoint; empty for tables filled as a side effect
	UniqueKey []string
	Columns   []warehouse.RefColumn

	// RequiresCategoryIteration marks dictionaries that must be assembled
	// from per-deal-category stage lists in addition to the base list.
	RequiresCategoryIteration bool
}

// EnumValuesTable receives enumeration items captured during entity field
// discovery. It has no list endpoint of its own.
const EnumValuesTable = "ref_enum_values"

// Registry enumerates all reference dictionaries.
var Registry = []Definition{
	{
		Name:                      "crm_status",
		Table:                     "ref_crm_statuses",
		Method:                    "crm.status.list",
		UniqueKey:                 []string{"status_id", "entity_id", "category_id"},
		RequiresCategoryIteration: true,
		Columns: []warehouse.RefColumn{
			{Name: "status_id", SQLType: "VARCHAR(255)"},
			{Name: "entity_id", SQLType: "VARCHAR(255)"},
			{Name: "category_id", SQLType: "VARCHAR(255)"},
			{Name: "name", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "name_init", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "sort", SQLType: "BIGINT", Nullable: true},
			{Name: "system", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "color", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "semantics", SQLType: "VARCHAR(255)", Nullable: true},
		},
	},
	{
		Name:      "crm_deal_category",
		Table:     "ref_crm_deal_categories",
		Method:    "crm.dealcategory.list",
		UniqueKey: []string{"id"},
		Columns: []warehouse.RefColumn{
			{Name: "id", SQLType: "VARCHAR(255)"},
			{Name: "name", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "sort", SQLType: "BIGINT", Nullable: true},
			{Name: "is_locked", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "created_date", SQLType: "TIMESTAMP", Nullable: true},
		},
	},
	{
		Name:      "crm_currency",
		Table:     "ref_crm_currencies",
		Method:    "crm.currency.list",
		UniqueKey: []string{"currency"},
		Columns: []warehouse.RefColumn{
			{Name: "currency", SQLType: "VARCHAR(255)"},
			{Name: "base", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "amount_cnt", SQLType: "BIGINT", Nullable: true},
			{Name: "amount", SQLType: "FLOAT", Nullable: true},
			{Name: "sort", SQLType: "BIGINT", Nullable: true},
			{Name: "date_update", SQLType: "TIMESTAMP", Nullable: true},
			{Name: "lid", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "format_string", SQLType: "VARCHAR(255)", Nullable: true},
			{Name: "full_name", SQLType: "VARCHAR(255)", Nullable: true},
		},
	},
	{
		Name:      "enum_values",
		Table:     EnumValuesTable,
		UniqueKey: []string{"field_name", "entity_type", "item_id"},
		Columns: []warehouse.RefColumn{
			{Name: "field_name", SQLType: "VARCHAR(255)"},
			{Name: "entity_type", SQLType: "VARCHAR(255)"},
			{Name: "item_id", SQLType: "VARCHAR(255)"},
			{Name: "value", SQLType: "TEXT", Nullable: true},
		},
	},
}

// Lookup returns the definition with the given name.
func Lookup(name string) (*Definition, bool) {
	for i := range Registry {
		if Registry[i].Name == name {
			return &Registry[i], true
		}
	}
	return nil, false
}

// Names lists all registry entries that can be synced directly.
func Names() []string {
	var names []string
	for _, def := range Registry {
		if def.Method != "" {
			names = append(names, def.Name)
		}
	}
	return names
}
