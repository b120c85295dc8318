package random

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"strconv"
)

// Random provides random number generation that can be mocked for testing
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int

	// Float64 returns a random float in [0, 1)
	Float64() float64

	// Digits returns a numeric string of the given length whose first digit is never zero
	Digits(length int) string
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn returns a cryptographically random int in [0, n)
func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	result, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		return 0
	}
	return int(result.Int64())
}

// Float64 returns a uniformly distributed float in [0, 1) built from 53 random bits
func (r *CryptoRandom) Float64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Digits returns a random numeric code such as an OTP
func (r *CryptoRandom) Digits(length int) string {
	return DigitsFrom(r, length)
}

// DigitsFrom builds a numeric code of the given length from r.Intn.
// The value is drawn from [10^(length-1), 10^length) so it never starts with zero.
func DigitsFrom(r Random, length int) string {
	if length <= 0 {
		return ""
	}
	low := 1
	for i := 1; i < length; i++ {
		low *= 10
	}
	return strconv.Itoa(low + r.Intn(low*9))
}
