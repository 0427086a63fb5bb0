// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import "math"

// minScoreInputLength is the minimum input length fed into the hash. Shorter
// keys are doubled until they reach it, matching the reference algorithm
// shared by the other SDK implementations.
const minScoreInputLength = 8

// Score maps a correlation key onto [0, 100). The function is a fixed,
// cross-language algorithm: every process observing the same trace must
// compute the same score so that the trace is sampled identically everywhere
// without coordination. Do not change it.
//
// Keys are hashed byte-wise and are expected to be ASCII (trace ids in hex).
// The empty key scores 0.
func Score(key string) float64 {
	if key == "" {
		return 0
	}
	input := key
	for len(input) < minScoreInputLength {
		input += input
	}
	var hash int32 = 5381
	for i := 0; i < len(input); i++ {
		hash = (hash << 5) + hash + int32(input[i])
	}
	if hash == math.MinInt32 {
		hash = math.MaxInt32
	} else if hash < 0 {
		hash = -hash
	}
	return float64(hash) / math.MaxInt32 * 100
}

// IsRoundPercentage reports whether p belongs to the 100/N family for a whole
// N (100, 50, 33.33, 25, ...). Percentages outside the family are accepted by
// the sampler but produce biased downstream proportion estimates; callers
// should warn. The tolerance absorbs decimal truncation such as 33.33.
func IsRoundPercentage(p float64) bool {
	if p <= 0 || p > 100 {
		return false
	}
	n := 100 / p
	return math.Abs(n-math.Round(n)) < 0.01
}
