package apperrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifiers(t *testing.T) {
	auth := &AuthenticationError{Message: "expired_token"}
	rate := &RateLimitError{Message: "QUERY_LIMIT_EXCEEDED"}
	opLimit := &OperationTimeLimitError{Message: "narrow the filter"}
	api := &APIError{Code: "INTERNAL", Description: "boom"}

	assert.True(t, IsAuthentication(auth))
	assert.False(t, IsAuthentication(rate))

	assert.True(t, IsRateLimit(rate))
	assert.False(t, IsRateLimit(api))

	assert.True(t, IsOperationTimeLimit(opLimit))
	assert.True(t, IsAPI(api))
}

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	inner := &RateLimitError{Message: "slow down"}
	wrapped := &SyncError{EntityType: "deal", Err: fmt.Errorf("fetch: %w", inner)}

	assert.True(t, IsRateLimit(wrapped))
	assert.False(t, IsAuthentication(wrapped))
}

func TestSyncErrorMessageCarriesEntity(t *testing.T) {
	err := &SyncError{EntityType: "contact", Err: fmt.Errorf("kaput")}
	assert.Contains(t, err.Error(), "contact")
	assert.Contains(t, err.Error(), "kaput")
}

func TestDatabaseErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := &DatabaseError{Op: "upsert crm_deals", Err: cause}
	assert.True(t, IsDatabase(err))
	assert.ErrorContains(t, err, "upsert crm_deals")
}
