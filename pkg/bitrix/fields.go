package bitrix

import (
	"context"
	"encoding/json"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
)

// EnumItem is one list choice of an enumeration user field.
type EnumItem struct {
	ID    string
	Value string
}

// FieldMeta describes one entity field as reported by Bitrix metadata.
type FieldMeta struct {
	ID         string
	Type       string
	Title      string
	IsMultiple bool
	Enum       []EnumItem
}

// GetEntityFields returns standard field metadata keyed by field ID.
// user.*, voximplant.statistic.* and crm.stagehistory.* expose no type
// information, so those entity types get a built-in canonical map.
func (c *Client) GetEntityFields(ctx context.Context, entityType string) (map[string]FieldMeta, error) {
	switch {
	case crmEntities[entityType]:
		raw, err := c.Call(ctx, "crm."+entityType+".fields", nil)
		if err != nil {
			return nil, err
		}
		return decodeFieldMap(raw)

	case entityType == EntityTask:
		raw, err := c.Call(ctx, "tasks.task.getFields", nil)
		if err != nil {
			return nil, err
		}
		var wrapper struct {
			Fields json.RawMessage `json:"fields"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, &apperrors.APIError{Code: "decode", Description: err.Error()}
		}
		fields, err := decodeFieldMap(wrapper.Fields)
		if err != nil {
			return nil, err
		}
		// Task metadata keys are camelCase like the records themselves.
		canonical := make(map[string]FieldMeta, len(fields))
		for id, meta := range fields {
			upper := ToUpperSnake(id)
			meta.ID = upper
			canonical[upper] = meta
		}
		return canonical, nil

	case entityType == EntityUser:
		return builtinFields(userFieldTypes), nil
	case entityType == EntityCall:
		return builtinFields(callFieldTypes), nil
	case entityType == EntityStageHistoryDeal, entityType == EntityStageHistoryLead:
		return builtinFields(stageHistoryFieldTypes), nil
	default:
		return nil, &apperrors.APIError{Code: "unknown_entity", Description: entityType}
	}
}

// GetUserFields returns tenant-defined UF_* fields for CRM entities.
// Non-CRM entities have no separate user-field catalog.
func (c *Client) GetUserFields(ctx context.Context, entityType string) ([]FieldMeta, error) {
	if !crmEntities[entityType] {
		return nil, nil
	}

	raw, err := c.Call(ctx, "crm."+entityType+".userfield.list", nil)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &apperrors.APIError{Code: "decode", Description: err.Error()}
	}

	fields := make([]FieldMeta, 0, len(items))
	for _, item := range items {
		name, _ := item["FIELD_NAME"].(string)
		if name == "" {
			continue
		}
		meta := FieldMeta{
			ID:         name,
			Type:       stringOr(item["USER_TYPE_ID"], "string"),
			Title:      userFieldLabel(item),
			IsMultiple: item["MULTIPLE"] == "Y",
			Enum:       decodeEnumItems(item["LIST"]),
		}
		fields = append(fields, meta)
	}
	return fields, nil
}

// decodeFieldMap parses crm.<type>.fields-style metadata: a map of field
// ID to {type, isMultiple, title, formLabel, ...}.
func decodeFieldMap(raw json.RawMessage) (map[string]FieldMeta, error) {
	var decoded map[string]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &apperrors.APIError{Code: "decode", Description: err.Error()}
	}

	fields := make(map[string]FieldMeta, len(decoded))
	for id, attrs := range decoded {
		fields[id] = FieldMeta{
			ID:         id,
			Type:       stringOr(attrs["type"], "string"),
			Title:      standardFieldLabel(attrs),
			IsMultiple: attrs["isMultiple"] == true,
		}
	}
	return fields, nil
}

// standardFieldLabel picks the human title: title, then formLabel.
func standardFieldLabel(attrs map[string]any) string {
	if t, ok := attrs["title"].(string); ok && t != "" {
		return t
	}
	if t, ok := attrs["formLabel"].(string); ok && t != "" {
		return t
	}
	return ""
}

// userFieldLabel picks the label for a UF_* field:
// LIST_COLUMN_LABEL.ru, then EDIT_FORM_LABEL.ru. Both may be flat strings
// on older tenants.
func userFieldLabel(item map[string]any) string {
	for _, key := range []string{"LIST_COLUMN_LABEL", "EDIT_FORM_LABEL"} {
		switch v := item[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if ru, ok := v["ru"].(string); ok && ru != "" {
				return ru
			}
		}
	}
	return ""
}

func decodeEnumItems(v any) []EnumItem {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	items := make([]EnumItem, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, EnumItem{
			ID:    scalarString(m["ID"]),
			Value: stringOr(m["VALUE"], ""),
		})
	}
	return items
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func builtinFields(types map[string]string) map[string]FieldMeta {
	fields := make(map[string]FieldMeta, len(types))
	for id, typ := range types {
		fields[id] = FieldMeta{ID: id, Type: typ}
	}
	return fields
}

// userFieldTypes is the canonical map for user.get rows; user.fields
// reports labels but no types.
var userFieldTypes = map[string]string{
	"ID":                "integer",
	"ACTIVE":            "boolean",
	"NAME":              "string",
	"LAST_NAME":         "string",
	"SECOND_NAME":       "string",
	"EMAIL":             "string",
	"LAST_LOGIN":        "datetime",
	"DATE_REGISTER":     "datetime",
	"TIME_ZONE":         "string",
	"IS_ONLINE":         "string",
	"TIMESTAMP_X":       "datetime",
	"PERSONAL_GENDER":   "string",
	"PERSONAL_BIRTHDAY": "date",
	"PERSONAL_PHOTO":    "string",
	"PERSONAL_CITY":     "string",
	"PERSONAL_MOBILE":   "string",
	"WORK_PHONE":        "string",
	"WORK_POSITION":     "string",
	"UF_DEPARTMENT":     "string",
	"UF_EMPLOYMENT_DATE": "date",
	"USER_TYPE":         "string",
}

// callFieldTypes is the canonical map for voximplant.statistic.get rows.
var callFieldTypes = map[string]string{
	"ID":                 "string",
	"CALL_ID":            "string",
	"PORTAL_USER_ID":     "integer",
	"PORTAL_NUMBER":      "string",
	"PHONE_NUMBER":       "string",
	"CALL_TYPE":          "integer",
	"CALL_VOTE":          "integer",
	"COMMENT":            "text",
	"CALL_DURATION":      "integer",
	"CALL_START_DATE":    "datetime",
	"CALL_RECORD_URL":    "text",
	"CALL_STATUS_CODE":   "string",
	"CALL_FAILED_CODE":   "string",
	"CALL_FAILED_REASON": "string",
	"COST":               "double",
	"COST_CURRENCY":      "string",
	"CRM_ENTITY_TYPE":    "string",
	"CRM_ENTITY_ID":      "integer",
	"CRM_ACTIVITY_ID":    "integer",
	"REST_APP_ID":        "integer",
	"TRANSCRIPT_ID":      "integer",
	"TRANSCRIPT_PENDING": "string",
	"RECORD_FILE_ID":     "integer",
}

// stageHistoryFieldTypes is the canonical map for crm.stagehistory.list rows.
var stageHistoryFieldTypes = map[string]string{
	"ID":                "integer",
	"TYPE_ID":           "integer",
	"OWNER_ID":          "integer",
	"CREATED_TIME":      "datetime",
	"CATEGORY_ID":       "integer",
	"STAGE_SEMANTIC_ID": "string",
	"STAGE_ID":          "string",
	"STATUS_SEMANTIC_ID": "string",
	"STATUS_ID":         "string",
}
