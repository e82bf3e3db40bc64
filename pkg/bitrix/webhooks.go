package bitrix

import (
	"context"
	"encoding/json"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
)

// CRMEvents are the 12 outbound events the service binds handlers for.
var CRMEvents = []string{
	"ONCRMDEALADD", "ONCRMDEALUPDATE", "ONCRMDEALDELETE",
	"ONCRMCONTACTADD", "ONCRMCONTACTUPDATE", "ONCRMCONTACTDELETE",
	"ONCRMLEADADD", "ONCRMLEADUPDATE", "ONCRMLEADDELETE",
	"ONCRMCOMPANYADD", "ONCRMCOMPANYUPDATE", "ONCRMCOMPANYDELETE",
}

// RegisteredWebhook is one event binding as reported by event.get.
type RegisteredWebhook struct {
	Event   string `json:"event"`
	Handler string `json:"handler"`
}

// RegisterWebhook binds an outbound event to the handler URL.
func (c *Client) RegisterWebhook(ctx context.Context, event, handlerURL string) error {
	_, err := c.Call(ctx, "event.bind", map[string]any{
		"event":   event,
		"handler": handlerURL,
	})
	return err
}

// UnregisterWebhook removes an event binding.
func (c *Client) UnregisterWebhook(ctx context.Context, event, handlerURL string) error {
	_, err := c.Call(ctx, "event.unbind", map[string]any{
		"event":   event,
		"handler": handlerURL,
	})
	return err
}

// ListRegisteredWebhooks returns the current event bindings.
func (c *Client) ListRegisteredWebhooks(ctx context.Context) ([]RegisteredWebhook, error) {
	raw, err := c.Call(ctx, "event.get", nil)
	if err != nil {
		return nil, err
	}
	var hooks []RegisteredWebhook
	if err := json.Unmarshal(raw, &hooks); err != nil {
		return nil, &apperrors.APIError{Code: "decode", Description: err.Error()}
	}
	return hooks, nil
}
