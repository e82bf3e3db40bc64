// Package warehouse maintains dynamically-projected tables and writes
// coerced records into them. All DDL is derived from Bitrix field metadata;
// existing columns are never dropped or altered.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/database"
	"github.com/brightpulse/bitrix-warehouse/pkg/mapper"
)

// reservedColumns are part of the invariant schema prefix and never emitted
// from field metadata. "id" is reserved because the writer renames it to
// bitrix_id.
var reservedColumns = map[string]bool{
	"record_id":  true,
	"bitrix_id":  true,
	"created_at": true,
	"updated_at": true,
	"id":         true,
}

// RefColumn is one declared column of a reference table.
type RefColumn struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableBuilder reconciles warehouse tables with field lists.
type TableBuilder struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTableBuilder creates a TableBuilder.
func NewTableBuilder(db *database.DB, logger *zap.Logger) *TableBuilder {
	return &TableBuilder{db: db, logger: logger.Named("tables")}
}

// TableExists reports whether the table is present in the warehouse catalog.
func (b *TableBuilder) TableExists(ctx context.Context, table string) (bool, error) {
	query := b.db.Rebind(fmt.Sprintf(
		`SELECT COUNT(*) FROM information_schema.tables WHERE %s AND table_name = ?`,
		b.db.SchemaFilter()))

	var count int
	if err := b.db.QueryRowxContext(ctx, query, table).Scan(&count); err != nil {
		return false, &apperrors.DatabaseError{Op: "table exists " + table, Err: err}
	}
	return count > 0, nil
}

// GetTableColumns returns the current column names of a table.
func (b *TableBuilder) GetTableColumns(ctx context.Context, table string) ([]string, error) {
	types, err := b.GetColumnTypes(ctx, table)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(types))
	for name := range types {
		cols = append(cols, name)
	}
	return cols, nil
}

// GetColumnTypes returns column name → information_schema data_type.
func (b *TableBuilder) GetColumnTypes(ctx context.Context, table string) (map[string]string, error) {
	return columnTypes(ctx, b.db, table)
}

// EnsureTable brings an entity table into agreement with the field list:
// creates it with the invariant prefix when absent, otherwise adds any
// missing columns. Field descriptions become column comments.
func (b *TableBuilder) EnsureTable(ctx context.Context, table string, cols []mapper.Column) error {
	exists, err := b.TableExists(ctx, table)
	if err != nil {
		return err
	}

	comments := newCommentSet()

	if !exists {
		return b.createEntityTable(ctx, table, cols, comments)
	}

	existing, err := b.GetColumnTypes(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if reservedColumns[col.Name] {
			continue
		}
		if _, ok := existing[col.Name]; ok {
			continue
		}
		if err := b.addColumn(ctx, table, col.Name, col.SQLType, comments.disambiguate(col.Comment, col.Name)); err != nil {
			return err
		}
		b.logger.Info("added column",
			zap.String("table", table),
			zap.String("column", col.Name),
			zap.String("type", col.SQLType))
	}
	return nil
}

func (b *TableBuilder) createEntityTable(ctx context.Context, table string, cols []mapper.Column, comments *commentSet) error {
	defs := []string{
		b.serialPrimaryKey("record_id"),
		b.quote("bitrix_id") + " VARCHAR(255) NOT NULL UNIQUE",
		b.quote("created_at") + " TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
		b.quote("updated_at") + " TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	}

	type pendingComment struct{ column, text string }
	var pgComments []pendingComment

	for _, col := range cols {
		if reservedColumns[col.Name] {
			continue
		}
		def := b.quote(col.Name) + " " + col.SQLType
		comment := comments.disambiguate(col.Comment, col.Name)
		if comment != "" {
			if b.db.Dialect == database.DialectMySQL {
				def += " COMMENT '" + escapeComment(comment) + "'"
			} else {
				pgComments = append(pgComments, pendingComment{col.Name, comment})
			}
		}
		defs = append(defs, def)
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", b.quote(table), strings.Join(defs, ",\n  "))
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return &apperrors.DatabaseError{Op: "create table " + table, Err: err}
	}
	b.logger.Info("created table", zap.String("table", table), zap.Int("columns", len(cols)))

	for _, pc := range pgComments {
		if err := b.commentOnColumn(ctx, table, pc.column, pc.text); err != nil {
			return err
		}
	}
	return nil
}

// EnsureReferenceTable creates a reference table with its composite natural
// key, or adds missing declared columns to an existing one.
func (b *TableBuilder) EnsureReferenceTable(ctx context.Context, table string, cols []RefColumn, uniqueKey []string) error {
	exists, err := b.TableExists(ctx, table)
	if err != nil {
		return err
	}

	if exists {
		existing, err := b.GetColumnTypes(ctx, table)
		if err != nil {
			return err
		}
		for _, col := range cols {
			if reservedColumns[col.Name] {
				continue
			}
			if _, ok := existing[col.Name]; ok {
				continue
			}
			if err := b.addColumn(ctx, table, col.Name, col.SQLType, ""); err != nil {
				return err
			}
		}
		return nil
	}

	defs := []string{
		b.serialPrimaryKey("record_id"),
	}
	for _, col := range cols {
		if reservedColumns[col.Name] && col.Name != "id" {
			continue
		}
		def := b.quote(col.Name) + " " + col.SQLType
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		b.quote("created_at")+" TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
		b.quote("updated_at")+" TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	)

	if len(uniqueKey) > 0 {
		quoted := make([]string, len(uniqueKey))
		for i, k := range uniqueKey {
			quoted[i] = b.quote(k)
		}
		defs = append(defs, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", b.quote(table), strings.Join(defs, ",\n  "))
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return &apperrors.DatabaseError{Op: "create reference table " + table, Err: err}
	}
	b.logger.Info("created reference table",
		zap.String("table", table),
		zap.Strings("unique_key", uniqueKey))
	return nil
}

func (b *TableBuilder) addColumn(ctx context.Context, table, column, sqlType, comment string) error {
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", b.quote(table), b.quote(column), sqlType)
	if comment != "" && b.db.Dialect == database.DialectMySQL {
		ddl += " COMMENT '" + escapeComment(comment) + "'"
	}
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return &apperrors.DatabaseError{Op: fmt.Sprintf("add column %s.%s", table, column), Err: err}
	}
	if comment != "" && b.db.Dialect == database.DialectPostgres {
		return b.commentOnColumn(ctx, table, column, comment)
	}
	return nil
}

func (b *TableBuilder) commentOnColumn(ctx context.Context, table, column, comment string) error {
	ddl := fmt.Sprintf("COMMENT ON COLUMN %s.%s IS '%s'",
		b.quote(table), b.quote(column), escapeComment(comment))
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return &apperrors.DatabaseError{Op: fmt.Sprintf("comment %s.%s", table, column), Err: err}
	}
	return nil
}

func (b *TableBuilder) serialPrimaryKey(name string) string {
	if b.db.Dialect == database.DialectMySQL {
		return b.quote(name) + " BIGINT AUTO_INCREMENT PRIMARY KEY"
	}
	return b.quote(name) + " BIGSERIAL PRIMARY KEY"
}

func (b *TableBuilder) quote(name string) string { return b.db.QuoteIdentifier(name) }

func escapeComment(c string) string {
	return strings.ReplaceAll(c, "'", "''")
}

// commentSet disambiguates duplicate field titles by appending the column
// name on second and later use.
type commentSet struct {
	seen map[string]bool
}

func newCommentSet() *commentSet { return &commentSet{seen: map[string]bool{}} }

func (s *commentSet) disambiguate(comment, column string) string {
	if comment == "" {
		return ""
	}
	if s.seen[comment] {
		return comment + "_" + column
	}
	s.seen[comment] = true
	return comment
}

// columnTypes reads column name → data_type from information_schema.
func columnTypes(ctx context.Context, db *database.DB, table string) (map[string]string, error) {
	query := db.Rebind(fmt.Sprintf(
		`SELECT column_name, data_type FROM information_schema.columns WHERE %s AND table_name = ? ORDER BY ordinal_position`,
		db.SchemaFilter()))

	rows, err := db.QueryxContext(ctx, query, table)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "column types " + table, Err: err}
	}
	defer rows.Close()

	types := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, &apperrors.DatabaseError{Op: "column types " + table, Err: err}
		}
		types[strings.ToLower(name)] = strings.ToLower(dataType)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.DatabaseError{Op: "column types " + table, Err: err}
	}
	return types, nil
}
