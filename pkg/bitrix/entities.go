package bitrix

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
)

// Entity type names used across the sync pipeline.
const (
	EntityDeal             = "deal"
	EntityContact          = "contact"
	EntityLead             = "lead"
	EntityCompany          = "company"
	EntityUser             = "user"
	EntityTask             = "task"
	EntityCall             = "call"
	EntityStageHistoryDeal = "stage_history_deal"
	EntityStageHistoryLead = "stage_history_lead"
)

// KnownEntityTypes lists every entity the pipeline replicates.
var KnownEntityTypes = []string{
	EntityDeal, EntityContact, EntityLead, EntityCompany,
	EntityUser, EntityTask, EntityCall,
	EntityStageHistoryDeal, EntityStageHistoryLead,
}

var crmEntities = map[string]bool{
	EntityDeal:    true,
	EntityContact: true,
	EntityLead:    true,
	EntityCompany: true,
}

// IsCRMEntity reports whether the entity uses the crm.<type>.* method family.
func IsCRMEntity(entityType string) bool { return crmEntities[entityType] }

// IsKnownEntityType reports whether the pipeline replicates this entity.
func IsKnownEntityType(entityType string) bool {
	for _, known := range KnownEntityTypes {
		if known == entityType {
			return true
		}
	}
	return false
}

// stageHistoryTypeIDs maps stage history entities to Bitrix entityTypeId.
var stageHistoryTypeIDs = map[string]int{
	EntityStageHistoryLead: 1,
	EntityStageHistoryDeal: 2,
}

// GetEntities fetches all records of the given entity type, applying the
// optional filter and select list. Records come back with canonical
// UPPER_SNAKE_CASE keys and ID set as the replication key.
func (c *Client) GetEntities(ctx context.Context, entityType string, filter map[string]any, selectFields []string) ([]Record, error) {
	switch {
	case crmEntities[entityType]:
		if filter == nil {
			filter = map[string]any{">ID": "0"}
		}
		if selectFields == nil {
			selectFields = []string{"*", "UF_*"}
		}
		return c.GetAll(ctx, "crm."+entityType+".list", map[string]any{
			"filter": filter,
			"select": selectFields,
		})

	case entityType == EntityUser:
		params := map[string]any{}
		if filter != nil {
			params["FILTER"] = filter
		}
		return c.GetAll(ctx, "user.get", params)

	case entityType == EntityTask:
		params := map[string]any{}
		if filter != nil {
			params["filter"] = filter
		}
		records, err := c.GetAll(ctx, "tasks.task.list", params)
		if err != nil {
			return nil, err
		}
		for i, rec := range records {
			records[i] = NormalizeKeys(rec)
		}
		return records, nil

	case entityType == EntityCall:
		params := map[string]any{}
		if filter != nil {
			params["FILTER"] = filter
		}
		records, err := c.GetAll(ctx, "voximplant.statistic.get", params)
		if err != nil {
			return nil, err
		}
		return remapCallIDs(records), nil

	default:
		if typeID, ok := stageHistoryTypeIDs[entityType]; ok {
			params := map[string]any{"entityTypeId": typeID}
			if filter != nil {
				params["filter"] = filter
			}
			return c.GetAll(ctx, "crm.stagehistory.list", params)
		}
		return nil, &apperrors.APIError{Code: "unknown_entity", Description: entityType}
	}
}

// GetEntity fetches a single record by Bitrix ID, following the same
// dispatch and normalization rules as GetEntities. A missing record
// returns (nil, nil).
func (c *Client) GetEntity(ctx context.Context, entityType, id string) (Record, error) {
	switch {
	case crmEntities[entityType]:
		raw, err := c.Call(ctx, "crm."+entityType+".get", map[string]any{"id": id})
		if err != nil {
			if apperrors.IsAPI(err) {
				// "Not found" comes back as a generic API error.
				return nil, nil
			}
			return nil, err
		}
		return decodeRecord(raw)

	case entityType == EntityUser:
		records, err := c.GetAll(ctx, "user.get", map[string]any{
			"FILTER": map[string]any{"ID": id},
		})
		if err != nil {
			return nil, err
		}
		return firstOrNil(records), nil

	case entityType == EntityTask:
		raw, err := c.Call(ctx, "tasks.task.get", map[string]any{"taskId": id})
		if err != nil {
			return nil, err
		}
		var wrapper struct {
			Task Record `json:"task"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, &apperrors.APIError{Code: "decode", Description: err.Error()}
		}
		if wrapper.Task == nil {
			return nil, nil
		}
		return NormalizeKeys(wrapper.Task), nil

	case entityType == EntityCall:
		records, err := c.GetAll(ctx, "voximplant.statistic.get", map[string]any{
			"FILTER": map[string]any{"CALL_ID": id},
		})
		if err != nil {
			return nil, err
		}
		return firstOrNil(remapCallIDs(records)), nil

	default:
		if _, ok := stageHistoryTypeIDs[entityType]; ok {
			records, err := c.GetEntities(ctx, entityType, map[string]any{"ID": id}, nil)
			if err != nil {
				return nil, err
			}
			return firstOrNil(records), nil
		}
		return nil, &apperrors.APIError{Code: "unknown_entity", Description: entityType}
	}
}

// remapCallIDs copies CALL_ID onto ID so the writer can use its standard
// replication key. voximplant rows have no ID of their own.
func remapCallIDs(records []Record) []Record {
	for _, rec := range records {
		if callID, ok := rec["CALL_ID"]; ok {
			rec["ID"] = callID
		}
	}
	return records
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "false" {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &apperrors.APIError{Code: "decode", Description: fmt.Sprintf("single record: %v", err)}
	}
	return rec, nil
}

func firstOrNil(records []Record) Record {
	if len(records) == 0 {
		return nil
	}
	return records[0]
}
