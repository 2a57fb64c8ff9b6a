package cxtest

import (
	"crypto/sha256"
	"math/rand/v2"
	"testing"
)

// RandForTest returns a pseudorandom source
// seeded from the test name, so that reruns of a test observe the same sequence.
func RandForTest(t *testing.T) *rand.Rand {
	// Sha256 happens to be the right size for the chacha8 seed,
	// and this fits well anyway since that means
	// we are not limited by the length of any particular test name.
	seed := sha256.Sum256([]byte(t.Name()))
	return rand.New(rand.NewChaCha8(seed))
}

// RandomIntsForTest returns n pseudorandom integers in [0, max),
// derived from a seed based on the test name.
func RandomIntsForTest(t *testing.T, n, max int) []int {
	r := RandForTest(t)

	out := make([]int, n)
	for i := range out {
		out[i] = r.IntN(max)
	}
	return out
}
