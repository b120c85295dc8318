package mocks

import (
	"sync"

	"github.com/mcoot/dicefunnel/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing
type MockRandom struct {
	mu sync.Mutex

	// IntnResults is a queue of results to return from Intn
	IntnResults []int
	intnIndex   int

	// FloatResults is a queue of results to return from Float64
	FloatResults []float64
	floatIndex   int

	// DigitResults is a queue of codes to return from Digits
	DigitResults []string
	digitIndex   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intnIndex >= len(r.IntnResults) {
		return 0
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// Float64 returns the next queued result, or 0 if none remaining
func (r *MockRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.floatIndex >= len(r.FloatResults) {
		return 0
	}
	result := r.FloatResults[r.floatIndex]
	r.floatIndex++
	return result
}

// Digits returns the next queued code. When the queue is empty it derives
// a code from the Intn queue the same way CryptoRandom does.
func (r *MockRandom) Digits(length int) string {
	r.mu.Lock()
	if r.digitIndex < len(r.DigitResults) {
		result := r.DigitResults[r.digitIndex]
		r.digitIndex++
		r.mu.Unlock()
		return result
	}
	r.mu.Unlock()
	return random.DigitsFrom(r, length)
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	r.IntnResults = append(r.IntnResults, values...)
	r.mu.Unlock()
}

// QueueFloat64 adds values to the Float64 result queue
func (r *MockRandom) QueueFloat64(values ...float64) {
	r.mu.Lock()
	r.FloatResults = append(r.FloatResults, values...)
	r.mu.Unlock()
}

// QueueDigits adds codes to the Digits result queue
func (r *MockRandom) QueueDigits(values ...string) {
	r.mu.Lock()
	r.DigitResults = append(r.DigitResults, values...)
	r.mu.Unlock()
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = nil
	r.intnIndex = 0
	r.FloatResults = nil
	r.floatIndex = 0
	r.DigitResults = nil
	r.digitIndex = 0
}
