package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/database"
)

// Writer upserts prepared records into warehouse tables.
type Writer struct {
	db     *database.DB
	logger *zap.Logger
}

// NewWriter creates a Writer.
func NewWriter(db *database.DB, logger *zap.Logger) *Writer {
	return &Writer{db: db, logger: logger.Named("writer")}
}

// PrepareRecord projects an API record onto the table's column catalog:
// ID becomes bitrix_id, keys are lowercased, keys without a matching column
// are dropped, and values are coerced to the column type. Returns nil when
// the record carries no usable bitrix_id.
func PrepareRecord(record bitrix.Record, columns map[string]string) map[string]any {
	out := make(map[string]any, len(record))
	for key, value := range record {
		name := strings.ToLower(key)
		if name == "id" {
			name = "bitrix_id"
		}
		colType, ok := columns[name]
		if !ok {
			continue
		}
		if name == "bitrix_id" {
			id := stringifyID(value)
			if id == "" {
				return nil
			}
			out[name] = id
			continue
		}
		out[name] = CoerceValue(colType, value)
	}
	if _, ok := out["bitrix_id"]; !ok {
		return nil
	}
	return out
}

// UpsertRecords writes records into table keyed on bitrix_id, returning how
// many were written. Records without an ID are skipped silently.
func (w *Writer) UpsertRecords(ctx context.Context, table string, records []bitrix.Record) (int, error) {
	columns, err := columnTypes(ctx, w.db, table)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, record := range records {
		prepared := PrepareRecord(record, columns)
		if prepared == nil {
			continue
		}
		if err := w.upsertOne(ctx, table, prepared, []string{"bitrix_id"}); err != nil {
			return processed, err
		}
		processed++
	}

	w.logger.Debug("upserted records",
		zap.String("table", table),
		zap.Int("received", len(records)),
		zap.Int("processed", processed))
	return processed, nil
}

// UpsertRecordsWithKey writes already-shaped rows keyed on a composite
// natural key. Rows are coerced against the live column catalog; rows
// missing any key column are skipped.
func (w *Writer) UpsertRecordsWithKey(ctx context.Context, table string, rows []map[string]any, keyColumns []string) (int, error) {
	columns, err := columnTypes(ctx, w.db, table)
	if err != nil {
		return 0, err
	}

	processed := 0
rowLoop:
	for _, row := range rows {
		prepared := make(map[string]any, len(row))
		for key, value := range row {
			name := strings.ToLower(key)
			colType, ok := columns[name]
			if !ok {
				continue
			}
			prepared[name] = CoerceValue(colType, value)
		}
		for _, key := range keyColumns {
			if prepared[key] == nil {
				continue rowLoop
			}
		}
		if err := w.upsertOne(ctx, table, prepared, keyColumns); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// DeleteByBitrixID removes a record by its Bitrix ID. Deleting an absent
// record is not an error.
func (w *Writer) DeleteByBitrixID(ctx context.Context, table, bitrixID string) (bool, error) {
	query := w.db.Rebind(fmt.Sprintf(
		"DELETE FROM %s WHERE %s = ?",
		w.db.QuoteIdentifier(table), w.db.QuoteIdentifier("bitrix_id")))

	res, err := w.db.ExecContext(ctx, query, bitrixID)
	if err != nil {
		return false, &apperrors.DatabaseError{Op: "delete from " + table, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &apperrors.DatabaseError{Op: "delete from " + table, Err: err}
	}
	return affected > 0, nil
}

func (w *Writer) upsertOne(ctx context.Context, table string, row map[string]any, keyColumns []string) error {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		quoted[i] = w.db.QuoteIdentifier(name)
		placeholders[i] = "?"
		args[i] = row[name]
	}

	isKey := make(map[string]bool, len(keyColumns))
	for _, k := range keyColumns {
		isKey[k] = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)",
		w.db.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))

	if w.db.Dialect == database.DialectMySQL {
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		for _, name := range names {
			if isKey[name] {
				continue
			}
			q := w.db.QuoteIdentifier(name)
			fmt.Fprintf(&sb, "%s = VALUES(%s), ", q, q)
		}
		sb.WriteString(w.db.QuoteIdentifier("updated_at") + " = NOW()")
	} else {
		keys := make([]string, len(keyColumns))
		for i, k := range keyColumns {
			keys[i] = w.db.QuoteIdentifier(k)
		}
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(keys, ", "))
		for _, name := range names {
			if isKey[name] {
				continue
			}
			q := w.db.QuoteIdentifier(name)
			fmt.Fprintf(&sb, "%s = EXCLUDED.%s, ", q, q)
		}
		sb.WriteString(w.db.QuoteIdentifier("updated_at") + " = NOW()")
	}

	query := w.db.Rebind(sb.String())
	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return &apperrors.DatabaseError{Op: "upsert into " + table, Err: err}
	}
	return nil
}

// stringifyID renders a Bitrix record ID as the canonical bitrix_id string.
func stringifyID(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
