package helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =====================================================
// Backoff
// =====================================================

func TestScaledBackoffDoubles(t *testing.T) {
	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 60 * time.Second},
		{100, 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ScaledBackoff(time.Second, tt.retryCount), "retry %d", tt.retryCount)
	}
}

func TestScaledBackoff(t *testing.T) {
	assert.Equal(t, 40*time.Millisecond, ScaledBackoff(10*time.Millisecond, 2))
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, SleepContext(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepContextElapses(t *testing.T) {
	assert.True(t, SleepContext(context.Background(), time.Millisecond))
}

// =====================================================
// Errors
// =====================================================

func TestClassifyUpstreamError(t *testing.T) {
	err := ClassifyUpstreamError("live subscribe", errors.New("User does not have a license for dataset GLBX.MDP3"))
	assert.True(t, IsEntitlement(err))

	var ent *EntitlementError
	require.ErrorAs(t, err, &ent)

	err = ClassifyUpstreamError("live subscribe", errors.New("connection reset by peer"))
	assert.False(t, IsEntitlement(err))
	var tr *TransportError
	assert.ErrorAs(t, err, &tr)
}

func TestEntitlementSurvivesWrapping(t *testing.T) {
	base := NewEntitlementError("no entitlement", nil)
	wrapped := fmt.Errorf("subscribe: %w", base)
	assert.True(t, IsEntitlement(wrapped))
}

func TestStreamerErrorUnwrap(t *testing.T) {
	cause := errors.New("eof")
	err := NewTransportError("gateway read", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gateway read: eof", err.Error())
}

func TestMalformedRecordError(t *testing.T) {
	err := NewMalformedRecordError("close")
	assert.True(t, IsMalformed(err))
	var m *MalformedRecordError
	require.ErrorAs(t, err, &m)
	assert.Equal(t, "close", m.Field)
}
