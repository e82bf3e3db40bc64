// Package webhook decodes Bitrix event notifications and routes them to
// entity sync tasks.
package webhook

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseForm decodes a Bitrix webhook body. Bitrix posts PHP-style bracketed
// form keys (event=ONCRMDEALUPDATE&data[FIELDS][ID]=15) that net/url
// flattens, so the nesting is rebuilt here. Repeated terminal keys collect
// into a list.
func ParseForm(body string) (map[string]any, error) {
	root := make(map[string]any)
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("bad form key %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("bad form value for %q: %w", key, err)
		}
		insert(root, splitKey(key), value)
	}
	return root, nil
}

// splitKey turns data[FIELDS][ID] into [data FIELDS ID]. Empty segments
// (trailing [] markers) are dropped.
func splitKey(key string) []string {
	parts := strings.Split(strings.ReplaceAll(key, "]", ""), "[")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

func insert(node map[string]any, path []string, value string) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		key := path[0]
		switch existing := node[key].(type) {
		case nil:
			node[key] = value
		case []any:
			node[key] = append(existing, value)
		default:
			node[key] = []any{existing, value}
		}
		return
	}

	child, ok := node[path[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		node[path[0]] = child
	}
	insert(child, path[1:], value)
}

// Notification is the part of a webhook payload the sync pipeline uses.
type Notification struct {
	Event    string
	EntityID string
}

// ParseNotification extracts the event name and entity ID from a webhook
// body.
func ParseNotification(body string) (*Notification, error) {
	form, err := ParseForm(body)
	if err != nil {
		return nil, err
	}

	event, _ := form["event"].(string)
	if event == "" {
		return nil, fmt.Errorf("webhook payload carries no event")
	}

	n := &Notification{Event: strings.ToUpper(event)}
	if data, ok := form["data"].(map[string]any); ok {
		if fields, ok := data["FIELDS"].(map[string]any); ok {
			if id, ok := fields["ID"].(string); ok {
				n.EntityID = id
			}
		}
	}
	return n, nil
}
