// Package backoff provides exponential backoff with jitter for retrying
// upstream calls, primarily the LLM streaming client.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added on top of
	// the base delay.
	Jitter float64
}

// DefaultPolicy returns the retry policy used for LLM calls:
// base 1s, max 60s, factor 2, jitter 10%.
func DefaultPolicy() Policy {
	return Policy{
		Base:   time.Second,
		Max:    60 * time.Second,
		Factor: 2,
		Jitter: 0.1,
	}
}

// Compute calculates the delay for a given attempt number. Attempts
// start at 1. The formula is base*factor^(attempt-1) plus up to
// jitter*that in randomness, clamped to Max.
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the delay using a provided random value in
// [0.0, 1.0). Useful for deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)

	base := float64(policy.Base) * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue

	total := math.Min(float64(policy.Max), base+jitterAmount)
	return time.Duration(total).Round(time.Millisecond)
}
