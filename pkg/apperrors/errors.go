// Package apperrors defines the error taxonomy shared by the Bitrix client,
// the warehouse layer and the sync services. Every error carries a
// human-readable message; callers classify with errors.As.
package apperrors

import (
	"errors"
	"fmt"
)

// AuthenticationError indicates an expired or invalid webhook token.
// Fatal for the call; never retried.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return "bitrix authentication failed: " + e.Message
}

// RateLimitError indicates QUERY_LIMIT_EXCEEDED from Bitrix. The client
// retries these transparently; if retries are exhausted the last one
// surfaces to the caller.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return "bitrix rate limit exceeded: " + e.Message
}

// OperationTimeLimitError indicates the server refused to complete the
// request within its time budget. Fatal for the call; the sync service
// should narrow the filter and try again on the next trigger.
type OperationTimeLimitError struct {
	Message string
}

func (e *OperationTimeLimitError) Error() string {
	return "bitrix operation time limit: " + e.Message
}

// APIError is any other upstream failure reported in the response envelope.
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("bitrix api error %s: %s", e.Code, e.Description)
	}
	return "bitrix api error " + e.Code
}

// DatabaseError wraps a warehouse failure with the operation that caused it.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// SyncError wraps a lower-level error with entity context. The sync service
// raises these after writing the failed sync_logs row.
type SyncError struct {
	EntityType string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed for %s: %v", e.EntityType, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsAuthentication reports whether err is (or wraps) an AuthenticationError.
func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var target *RateLimitError
	return errors.As(err, &target)
}

// IsOperationTimeLimit reports whether err is (or wraps) an OperationTimeLimitError.
func IsOperationTimeLimit(err error) bool {
	var target *OperationTimeLimitError
	return errors.As(err, &target)
}

// IsAPI reports whether err is (or wraps) an APIError.
func IsAPI(err error) bool {
	var target *APIError
	return errors.As(err, &target)
}

// IsDatabase reports whether err is (or wraps) a DatabaseError.
func IsDatabase(err error) bool {
	var target *DatabaseError
	return errors.As(err, &target)
}

// IsSync reports whether err is (or wraps) a SyncError.
func IsSync(err error) bool {
	var target *SyncError
	return errors.As(err, &target)
}
