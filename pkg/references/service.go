package references

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
	"github.com/brightpulse/bitrix-warehouse/pkg/bitrix"
	"github.com/brightpulse/bitrix-warehouse/pkg/warehouse"
)

// API is the slice of the Bitrix client the reference sync needs.
type API interface {
	Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
	GetAll(ctx context.Context, method string, params map[string]any) ([]bitrix.Record, error)
}

// TableEnsurer creates or extends reference tables.
type TableEnsurer interface {
	EnsureReferenceTable(ctx context.Context, table string, cols []warehouse.RefColumn, uniqueKey []string) error
}

// RowWriter upserts shaped rows keyed on a composite natural key.
type RowWriter interface {
	UpsertRecordsWithKey(ctx context.Context, table string, rows []map[string]any, keyColumns []string) (int, error)
}

// Service loads Bitrix dictionaries into reference tables.
type Service struct {
	api    API
	tables TableEnsurer
	writer RowWriter
	logger *zap.Logger
}

// NewService creates a reference sync Service.
func NewService(api API, tables TableEnsurer, writer RowWriter, logger *zap.Logger) *Service {
	return &Service{api: api, tables: tables, writer: writer, logger: logger.Named("references")}
}

// SyncAll syncs every directly-syncable dictionary and returns per-name row
// counts. It stops at the first failure.
func (s *Service) SyncAll(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, name := range Names() {
		n, err := s.SyncOne(ctx, name)
		if err != nil {
			return counts, err
		}
		counts[name] = n
	}
	return counts, nil
}

// SyncOne syncs a single dictionary by registry name.
func (s *Service) SyncOne(ctx context.Context, name string) (int, error) {
	def, ok := Lookup(name)
	if !ok {
		return 0, fmt.Errorf("unknown reference %q", name)
	}
	if def.Method == "" {
		return 0, fmt.Errorf("reference %q is filled during entity sync and cannot be synced directly", name)
	}

	if err := s.tables.EnsureReferenceTable(ctx, def.Table, def.Columns, def.UniqueKey); err != nil {
		return 0, err
	}

	var rows []map[string]any
	var err error
	switch {
	case def.RequiresCategoryIteration:
		rows, err = s.statusRows(ctx)
	case def.Name == "crm_deal_category":
		rows, err = s.dealCategoryRows(ctx)
	default:
		rows, err = s.plainRows(ctx, def)
	}
	if err != nil {
		return 0, &apperrors.SyncError{EntityType: def.Name, Err: err}
	}

	n, err := s.writer.UpsertRecordsWithKey(ctx, def.Table, rows, def.UniqueKey)
	if err != nil {
		return n, err
	}
	s.logger.Info("reference synced", zap.String("reference", def.Name), zap.Int("rows", n))
	return n, nil
}

// CaptureEnumValues stores enumeration items discovered during field
// metadata refresh. Fields without enum items contribute nothing.
func (s *Service) CaptureEnumValues(ctx context.Context, entityType string, fields []bitrix.FieldMeta) (int, error) {
	def, _ := Lookup("enum_values")
	var rows []map[string]any
	for _, field := range fields {
		for _, item := range field.Enum {
			rows = append(rows, map[string]any{
				"field_name":  field.ID,
				"entity_type": entityType,
				"item_id":     item.ID,
				"value":       item.Value,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.tables.EnsureReferenceTable(ctx, def.Table, def.Columns, def.UniqueKey); err != nil {
		return 0, err
	}
	return s.writer.UpsertRecordsWithKey(ctx, def.Table, rows, def.UniqueKey)
}

func (s *Service) plainRows(ctx context.Context, def *Definition) ([]map[string]any, error) {
	records, err := s.api.GetAll(ctx, def.Method, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, lowercaseKeys(rec))
	}
	return rows, nil
}

// dealCategoryRows prepends the default pipeline, which crm.dealcategory.list
// does not return.
func (s *Service) dealCategoryRows(ctx context.Context) ([]map[string]any, error) {
	var rows []map[string]any

	raw, err := s.api.Call(ctx, "crm.dealcategory.default.get", nil)
	if err != nil {
		return nil, err
	}
	var defaultCategory bitrix.Record
	if err := json.Unmarshal(raw, &defaultCategory); err == nil && len(defaultCategory) > 0 {
		row := lowercaseKeys(defaultCategory)
		row["id"] = asString(row["id"])
		rows = append(rows, row)
	}

	records, err := s.api.GetAll(ctx, "crm.dealcategory.list", nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := lowercaseKeys(rec)
		row["id"] = asString(row["id"])
		rows = append(rows, row)
	}
	return rows, nil
}

// statusRows assembles the status dictionary from the base list plus the
// per-category deal stage lists. Stages of the default category keep the
// DEAL_STAGE entity id; other categories get DEAL_STAGE_<category>.
func (s *Service) statusRows(ctx context.Context) ([]map[string]any, error) {
	base, err := s.api.GetAll(ctx, "crm.status.list", nil)
	if err != nil {
		return nil, err
	}

	categories, err := s.api.GetAll(ctx, "crm.dealcategory.list", nil)
	if err != nil {
		return nil, err
	}
	categoryIDs := []string{"0"}
	for _, cat := range categories {
		id := asString(cat["ID"])
		if id != "" && id != "0" {
			categoryIDs = append(categoryIDs, id)
		}
	}
	sort.Strings(categoryIDs[1:])

	var rows []map[string]any
	for _, rec := range base {
		row := lowercaseKeys(rec)
		row["status_id"] = asString(row["status_id"])
		if row["category_id"] == nil {
			row["category_id"] = "0"
		}
		rows = append(rows, row)
	}

	stagesByCategory := make([][]map[string]any, len(categoryIDs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, categoryID := range categoryIDs {
		g.Go(func() error {
			stages, err := s.api.GetAll(gctx, "crm.dealcategory.stage.list", map[string]any{"id": categoryID})
			if err != nil {
				return err
			}
			entityID := "DEAL_STAGE"
			if categoryID != "0" {
				entityID = "DEAL_STAGE_" + categoryID
			}
			shaped := make([]map[string]any, 0, len(stages))
			for _, stage := range stages {
				row := lowercaseKeys(stage)
				row["status_id"] = asString(row["status_id"])
				row["entity_id"] = entityID
				row["category_id"] = categoryID
				shaped = append(shaped, row)
			}
			mu.Lock()
			stagesByCategory[i] = shaped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, shaped := range stagesByCategory {
		rows = append(rows, shaped...)
	}

	return dedupByKey(rows, []string{"status_id", "entity_id", "category_id"}), nil
}

// dedupByKey keeps the first row seen for each composite key.
func dedupByKey(rows []map[string]any, key []string) []map[string]any {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, row := range rows {
		parts := make([]string, len(key))
		for i, k := range key {
			parts[i] = asString(row[k])
		}
		composite := strings.Join(parts, "\x00")
		if seen[composite] {
			continue
		}
		seen[composite] = true
		out = append(out, row)
	}
	return out
}

func lowercaseKeys(rec bitrix.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[strings.ToLower(k)] = v
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
