package random

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedIntn struct{ n int }

func (f fixedIntn) Intn(int) int      { return f.n }
func (f fixedIntn) Float64() float64  { return 0 }
func (f fixedIntn) Digits(int) string { return "" }

func TestDigitsFromRange(t *testing.T) {
	assert.Equal(t, "1000", DigitsFrom(fixedIntn{0}, 4))
	assert.Equal(t, "9999", DigitsFrom(fixedIntn{8999}, 4))
	assert.Equal(t, "4821", DigitsFrom(fixedIntn{3821}, 4))
	assert.Equal(t, "100000", DigitsFrom(fixedIntn{0}, 6))
	assert.Empty(t, DigitsFrom(fixedIntn{0}, 0))
}

func TestCryptoRandomDigits(t *testing.T) {
	r := New()
	for i := 0; i < 200; i++ {
		code := r.Digits(4)
		assert.Len(t, code, 4)
		n, err := strconv.Atoi(code)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1000)
		assert.LessOrEqual(t, n, 9999)
	}
}

func TestCryptoRandomFloat64(t *testing.T) {
	r := New()
	for i := 0; i < 1000; i++ {
		f := r.Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}

func TestCryptoRandomIntnNonPositive(t *testing.T) {
	assert.Equal(t, 0, New().Intn(0))
	assert.Equal(t, 0, New().Intn(-3))
}
