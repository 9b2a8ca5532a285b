package utils

import (
	"signal-streamer/src/models"
)

// -----------------------------------------------------------------------------
// BarRing is a fixed-size circular buffer of bars.
// Oldest entries are overwritten once full; it never grows.
// -----------------------------------------------------------------------------

type BarRing struct {
	data     []models.MBar
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewBarRing creates a new buffer with fixed capacity
func NewBarRing(capacity int) *BarRing {
	if capacity <= 0 {
		capacity = 1
	}

	return &BarRing{
		data:     make([]models.MBar, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a bar, evicting the oldest one when full
func (rb *BarRing) Append(bar models.MBar) {
	rb.data[rb.index] = bar
	rb.index = (rb.index + 1) % rb.capacity

	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n latest bars, oldest first
func (rb *BarRing) GetLatest(n int) []models.MBar {
	if rb.size == 0 || n <= 0 {
		return []models.MBar{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]models.MBar, count)

	// latest data is at index-1
	startIdx := (rb.index - count + rb.capacity) % rb.capacity
	for i := 0; i < count; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns all data in insertion order (oldest to newest)
func (rb *BarRing) GetAll() []models.MBar {
	return rb.GetLatest(rb.size)
}

// -----------------------------------------------------------------------------

// Last returns the most recent bar
func (rb *BarRing) Last() (models.MBar, bool) {
	if rb.size == 0 {
		return models.MBar{}, false
	}
	return rb.data[(rb.index-1+rb.capacity)%rb.capacity], true
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *BarRing) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *BarRing) Capacity() int {
	return rb.capacity
}
