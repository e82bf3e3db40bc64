package bitrix

import (
	"regexp"
	"strings"
)

// tasks.task.list returns camelCase keys while every other endpoint uses
// UPPER_SNAKE_CASE. Downstream code only ever sees the canonical form.
var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// ToUpperSnake converts a camelCase key to UPPER_SNAKE_CASE. It is the
// identity on keys that are already upper snake (UF_CRM_TASK, ID).
func ToUpperSnake(key string) string {
	return strings.ToUpper(camelBoundary.ReplaceAllString(key, "${1}_${2}"))
}

// NormalizeKeys returns a copy of the record with every key converted to
// UPPER_SNAKE_CASE.
func NormalizeKeys(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[ToUpperSnake(k)] = v
	}
	return out
}
