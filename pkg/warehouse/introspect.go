package warehouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/database"
)

// ColumnInfo describes one column of a warehouse table as exposed over the
// introspection API. Comment carries the original Bitrix field title.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Comment  string `json:"comment,omitempty"`
}

// EnumValue is one captured enumeration item for a Bitrix list field.
type EnumValue struct {
	FieldName  string `json:"field_name"`
	EntityType string `json:"entity_type"`
	ItemID     string `json:"item_id"`
	Value      string `json:"value"`
}

// Introspector answers schema questions about the warehouse.
type Introspector struct {
	db     *database.DB
	logger *zap.Logger
}

// NewIntrospector creates an Introspector.
func NewIntrospector(db *database.DB, logger *zap.Logger) *Introspector {
	return &Introspector{db: db, logger: logger.Named("introspect")}
}

// ListTables returns all table names in the warehouse schema.
func (i *Introspector) ListTables(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(
		`SELECT table_name FROM information_schema.tables WHERE %s ORDER BY table_name`,
		i.db.SchemaFilter())

	rows, err := i.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "list tables", Err: err}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &apperrors.DatabaseError{Op: "list tables", Err: err}
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DatabaseError{Op: "list tables", Err: err}
	}
	return tables, nil
}

// TableColumns returns the columns of a table with their comments.
func (i *Introspector) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	var query string
	if i.db.Dialect == database.DialectMySQL {
		query = `SELECT column_name, data_type, column_comment
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`
	} else {
		query = `SELECT c.column_name, c.data_type,
				COALESCE(pgd.description, '') AS column_comment
			FROM information_schema.columns c
			LEFT JOIN pg_catalog.pg_class cls ON cls.relname = c.table_name
			LEFT JOIN pg_catalog.pg_namespace ns
				ON ns.oid = cls.relnamespace AND ns.nspname = c.table_schema
			LEFT JOIN pg_catalog.pg_description pgd
				ON pgd.objoid = cls.oid AND pgd.objsubid = c.ordinal_position
			WHERE c.table_schema = 'public' AND c.table_name = ?
			ORDER BY c.ordinal_position`
	}

	rows, err := i.db.QueryxContext(ctx, i.db.Rebind(query), table)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "table columns " + table, Err: err}
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.DataType, &col.Comment); err != nil {
			return nil, &apperrors.DatabaseError{Op: "table columns " + table, Err: err}
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DatabaseError{Op: "table columns " + table, Err: err}
	}
	return columns, nil
}

// RowCount returns the number of rows in a table. The boolean is false when
// the table does not exist.
func (i *Introspector) RowCount(ctx context.Context, table string) (int64, bool, error) {
	existsQuery := fmt.Sprintf(
		`SELECT COUNT(*) FROM information_schema.tables WHERE %s AND table_name = ?`,
		i.db.SchemaFilter())

	var present int
	if err := i.db.GetContext(ctx, &present, i.db.Rebind(existsQuery), table); err != nil {
		return 0, false, &apperrors.DatabaseError{Op: "row count " + table, Err: err}
	}
	if present == 0 {
		return 0, false, nil
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", i.db.QuoteIdentifier(table))
	if err := i.db.GetContext(ctx, &count, query); err != nil {
		return 0, false, &apperrors.DatabaseError{Op: "row count " + table, Err: err}
	}
	return count, true, nil
}

// EnumValues returns the captured enumeration items for a field, optionally
// narrowed to one entity type.
func (i *Introspector) EnumValues(ctx context.Context, fieldName, entityType string) ([]EnumValue, error) {
	query := `SELECT field_name, entity_type, item_id, value
		FROM ref_enum_values WHERE field_name = ?`
	args := []any{fieldName}
	if entityType != "" {
		query += " AND entity_type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY item_id"

	rows, err := i.db.QueryxContext(ctx, i.db.Rebind(query), args...)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "enum values " + fieldName, Err: err}
	}
	defer rows.Close()

	var values []EnumValue
	for rows.Next() {
		var v EnumValue
		if err := rows.Scan(&v.FieldName, &v.EntityType, &v.ItemID, &v.Value); err != nil {
			return nil, &apperrors.DatabaseError{Op: "enum values " + fieldName, Err: err}
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DatabaseError{Op: "enum values " + fieldName, Err: err}
	}
	return values, nil
}
