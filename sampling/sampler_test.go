// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadConfig(t *testing.T) {
	tests := map[string]struct {
		percentage float64
		fallback   FallbackBehavior
		wantsErr   bool
	}{
		"valid root sampler":     {percentage: 50, fallback: UseDefaultPercentage},
		"valid parent sampler":   {percentage: 50, fallback: RecordAndSample},
		"negative percentage":    {percentage: -1, fallback: UseDefaultPercentage, wantsErr: true},
		"percentage above 100":   {percentage: 101, fallback: UseDefaultPercentage, wantsErr: true},
		"unknown fallback":       {percentage: 50, fallback: FallbackBehavior(42), wantsErr: true},
		"non-round but accepted": {percentage: 37.5, fallback: UseDefaultPercentage},
		"zero percent accepted":  {percentage: 0, fallback: UseDefaultPercentage},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.percentage, nil, tc.fallback)
			if tc.wantsErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDecideShortcuts(t *testing.T) {
	keys := []string{"", "4bf92f3577b34da6a3ce929d0e0e4736", "x"}

	always, err := New(100, nil, UseDefaultPercentage)
	require.NoError(t, err)
	never, err := New(0, nil, UseDefaultPercentage)
	require.NoError(t, err)

	for _, key := range keys {
		d := always.Decide(key, nil)
		assert.True(t, d.Sampled, "key %q", key)
		assert.Equal(t, 100.0, d.Percentage)

		d = never.Decide(key, nil)
		assert.False(t, d.Sampled, "key %q", key)
	}
}

func TestDecideDeterministic(t *testing.T) {
	s, err := New(50, nil, UseDefaultPercentage)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		key := uuid.NewString()
		first := s.Decide(key, nil)
		for j := 0; j < 5; j++ {
			assert.Equal(t, first, s.Decide(key, nil), "key %q", key)
		}
		// The decision must agree with the raw score.
		assert.Equal(t, Score(key) < 50, first.Sampled, "key %q", key)
	}
}

func TestDecideOverrideOrderSensitive(t *testing.T) {
	// Both overrides match; the first one must win even though the second
	// specifies a different percentage.
	overrides := NewOverrides(
		NewMatcherGroup([]AttributeMatcher{
			NewExactMatcher("component", "db"),
		}, 100, false),
		NewMatcherGroup([]AttributeMatcher{
			NewExactMatcher("component", "db"),
		}, 0, false),
	)
	s, err := New(0, overrides, UseDefaultPercentage)
	require.NoError(t, err)

	d := s.Decide("4bf92f3577b34da6a3ce929d0e0e4736",
		map[string]string{"component": "db"})
	assert.True(t, d.Sampled)
	assert.Equal(t, 100.0, d.Percentage)
}

func TestDecideOverrideBeatsFallback(t *testing.T) {
	overrides := NewOverrides(
		NewMatcherGroup([]AttributeMatcher{
			NewExactMatcher("http.url", "/health"),
		}, 0, true),
	)
	// Fallback keeps everything, but the override drops health checks.
	s, err := New(100, overrides, RecordAndSample)
	require.NoError(t, err)

	d := s.Decide("trace-1", map[string]string{"http.url": "/health"})
	assert.False(t, d.Sampled)
	assert.True(t, d.OverwriteTraceState)

	d = s.Decide("trace-1", map[string]string{"http.url": "/api"})
	assert.True(t, d.Sampled)
}

func TestDecideRecordAndSampleKeepsEverything(t *testing.T) {
	s, err := New(25, nil, RecordAndSample)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		d := s.Decide(uuid.NewString(), nil)
		assert.True(t, d.Sampled)
		assert.Equal(t, 25.0, d.Percentage)
	}
}

func TestDecideAppliedPercentageReported(t *testing.T) {
	overrides := NewOverrides(
		NewMatcherGroup([]AttributeMatcher{
			NewExactMatcher("component", "db"),
		}, 100, false),
	)
	s, err := New(50, overrides, UseDefaultPercentage)
	require.NoError(t, err)

	d := s.Decide("some-trace", map[string]string{"component": "db"})
	assert.Equal(t, 100.0, d.Percentage, "override percentage must be reported")

	d = s.Decide("some-trace", nil)
	assert.Equal(t, 50.0, d.Percentage, "default percentage must be reported")
}
