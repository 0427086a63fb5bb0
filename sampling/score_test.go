// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestScoreDeterministic(t *testing.T) {
	keys := []string{
		"4bf92f3577b34da6a3ce929d0e0e4736",
		"00000000000000000000000000000001",
		"abc",
		"a",
	}
	for _, key := range keys {
		first := Score(key)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Score(key), "key %q", key)
		}
	}
}

func TestScoreRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		key := uuid.NewString()
		score := Score(key)
		assert.GreaterOrEqual(t, score, 0.0, "key %q", key)
		assert.LessOrEqual(t, score, 100.0, "key %q", key)
	}
}

func TestScoreEmptyKey(t *testing.T) {
	assert.Zero(t, Score(""))
}

func TestScoreShortKeysDouble(t *testing.T) {
	// Keys shorter than 8 bytes are doubled until they reach the minimum
	// length, so a short key scores the same as its expansion.
	assert.Equal(t, Score("abababab"), Score("ab"))
	assert.Equal(t, Score("xyzxyzxyzxyz"), Score("xyz"))
	assert.Equal(t, Score("aaaaaaaa"), Score("a"))
}

func TestScoreGoldenValues(t *testing.T) {
	// Fixed vectors computed from the reference algorithm. Any change to the
	// seed, the shift, the wraparound or the input expansion breaks agreement
	// with the other SDKs and must fail here.
	tests := map[string]struct {
		key  string
		want float64
	}{
		"trace id 1":  {key: "4bf92f3577b34da6a3ce929d0e0e4736", want: 33.46135385030012},
		"trace id 2":  {key: "00000000000000000000000000000001", want: 2.339351457701694},
		"trace id 3":  {key: "0af7651916cd43dd8448eb211c80319c", want: 52.78892803601405},
		"three chars": {key: "abc", want: 46.12368808413096},
		"two chars":   {key: "ab", want: 76.44302927723295},
		"one char":    {key: "a", want: 16.249091046046974},
		"word":        {key: "hello", want: 0.852481415892244},
		"mixed key":   {key: "request-7", want: 20.522815836836962},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, Score(tc.key), 1e-9)
		})
	}
}

func TestScoreDistribution(t *testing.T) {
	// At 50% roughly half of random trace ids must score below 50. The wide
	// tolerance keeps the test deterministic enough while still catching a
	// broken hash.
	const n = 2000
	kept := 0
	for i := 0; i < n; i++ {
		if Score(fmt.Sprintf("%032x", int64(i)*2654435761)) < 50 {
			kept++
		}
	}
	ratio := float64(kept) / n
	assert.InDelta(t, 0.5, ratio, 0.15, "kept ratio %f", ratio)
}

func TestIsRoundPercentage(t *testing.T) {
	tests := map[string]struct {
		percentage float64
		want       bool
	}{
		"100 percent":     {percentage: 100, want: true},
		"half":            {percentage: 50, want: true},
		"third truncated": {percentage: 33.33, want: true},
		"quarter":         {percentage: 25, want: true},
		"tenth":           {percentage: 10, want: true},
		"not in family":   {percentage: 45, want: false},
		"odd fraction":    {percentage: 37.5, want: false},
		"zero":            {percentage: 0, want: false},
		"negative":        {percentage: -50, want: false},
		"above a hundred": {percentage: 150, want: false},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsRoundPercentage(tc.percentage))
		})
	}
}
