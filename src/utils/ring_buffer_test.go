package utils

import (
	"testing"

	"signal-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barAt(ts int64) models.MBar {
	return models.MBar{Symbol: "ES", Timestamp: ts, Close: float64(ts)}
}

func TestBarRingEvictsOldest(t *testing.T) {
	rb := NewBarRing(3)
	for ts := int64(1); ts <= 5; ts++ {
		rb.Append(barAt(ts))
	}

	assert.Equal(t, 3, rb.Size())
	assert.Equal(t, 3, rb.Capacity())

	all := rb.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})
}

func TestBarRingGetLatest(t *testing.T) {
	rb := NewBarRing(5)
	for ts := int64(1); ts <= 4; ts++ {
		rb.Append(barAt(ts))
	}

	latest := rb.GetLatest(2)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(3), latest[0].Timestamp)
	assert.Equal(t, int64(4), latest[1].Timestamp)

	assert.Len(t, rb.GetLatest(10), 4)
	assert.Empty(t, rb.GetLatest(0))
}

func TestBarRingLast(t *testing.T) {
	rb := NewBarRing(2)
	_, ok := rb.Last()
	assert.False(t, ok)

	rb.Append(barAt(7))
	rb.Append(barAt(8))
	rb.Append(barAt(9))

	last, ok := rb.Last()
	require.True(t, ok)
	assert.Equal(t, int64(9), last.Timestamp)
}

func TestNewBarRingClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, NewBarRing(0).Capacity())
}
