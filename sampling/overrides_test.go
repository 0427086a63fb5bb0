// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeMatcher(t *testing.T) {
	regexMatcher, err := NewRegexpMatcher("http.url", `^/health.*`)
	require.NoError(t, err)

	tests := map[string]struct {
		matcher    AttributeMatcher
		attributes map[string]string
		want       bool
	}{
		"exact match": {
			matcher:    NewExactMatcher("component", "db"),
			attributes: map[string]string{"component": "db"},
			want:       true,
		},
		"exact mismatch": {
			matcher:    NewExactMatcher("component", "db"),
			attributes: map[string]string{"component": "http"},
			want:       false,
		},
		"missing attribute": {
			matcher:    NewExactMatcher("component", "db"),
			attributes: map[string]string{"other": "db"},
			want:       false,
		},
		"regex match": {
			matcher:    regexMatcher,
			attributes: map[string]string{"http.url": "/health/live"},
			want:       true,
		},
		"regex mismatch": {
			matcher:    regexMatcher,
			attributes: map[string]string{"http.url": "/api/orders"},
			want:       false,
		},
		"nil attributes": {
			matcher:    NewExactMatcher("component", "db"),
			attributes: nil,
			want:       false,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.matcher.Matches(tc.attributes))
		})
	}
}

func TestNewRegexpMatcherInvalidPattern(t *testing.T) {
	_, err := NewRegexpMatcher("http.url", `([`)
	require.Error(t, err)
}

func TestMatcherGroupRequiresAllMatchers(t *testing.T) {
	group := NewMatcherGroup([]AttributeMatcher{
		NewExactMatcher("component", "db"),
		NewExactMatcher("db.system", "postgres"),
	}, 10, false)

	assert.True(t, group.Matches(map[string]string{
		"component": "db",
		"db.system": "postgres",
	}))
	assert.False(t, group.Matches(map[string]string{
		"component": "db",
		"db.system": "mysql",
	}))
	assert.False(t, group.Matches(map[string]string{
		"component": "db",
	}))
}

func TestOverridesFirstMatchWins(t *testing.T) {
	first := NewMatcherGroup([]AttributeMatcher{
		NewExactMatcher("component", "db"),
	}, 10, false)
	second := NewMatcherGroup([]AttributeMatcher{
		NewExactMatcher("component", "db"),
	}, 90, true)

	overrides := NewOverrides(first, second)
	group, ok := overrides.Find(map[string]string{"component": "db"})
	require.True(t, ok)
	assert.Equal(t, 10.0, group.Percentage())
	assert.False(t, group.OverwritesTraceState())
}

func TestOverridesNoMatch(t *testing.T) {
	overrides := NewOverrides(NewMatcherGroup([]AttributeMatcher{
		NewExactMatcher("component", "db"),
	}, 10, false))

	_, ok := overrides.Find(map[string]string{"component": "http"})
	assert.False(t, ok)

	// A nil override set simply never matches.
	var nilOverrides *Overrides
	_, ok = nilOverrides.Find(map[string]string{"component": "db"})
	assert.False(t, ok)
}

func TestEmptyMatcherGroupMatchesEverything(t *testing.T) {
	group := NewMatcherGroup(nil, 5, false)
	assert.True(t, group.Matches(nil))
	assert.True(t, group.Matches(map[string]string{"any": "thing"}))
}
