// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"fmt"
	"regexp"
)

// AttributeMatcher matches one event attribute either by exact value or by
// regular expression. A missing attribute never matches.
type AttributeMatcher struct {
	key   string
	value string
	re    *regexp.Regexp
}

// NewExactMatcher builds a matcher that requires attribute key to equal value.
func NewExactMatcher(key, value string) AttributeMatcher {
	return AttributeMatcher{key: key, value: value}
}

// NewRegexpMatcher builds a matcher that requires attribute key to fully
// match pattern. An invalid pattern is a configuration error.
func NewRegexpMatcher(key, pattern string) (AttributeMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return AttributeMatcher{}, fmt.Errorf("override matcher for %q: %w", key, err)
	}
	return AttributeMatcher{key: key, re: re}, nil
}

// Matches reports whether the matcher accepts the given attributes.
func (m AttributeMatcher) Matches(attributes map[string]string) bool {
	v, ok := attributes[m.key]
	if !ok {
		return false
	}
	if m.re != nil {
		return m.re.MatchString(v)
	}
	return v == m.value
}

// MatcherGroup is one sampling override: a conjunction of attribute matchers
// plus the percentage to apply when all of them match.
type MatcherGroup struct {
	matchers            []AttributeMatcher
	percentage          float64
	overwriteTraceState bool
}

// NewMatcherGroup builds an override group. All matchers must match for the
// group to apply.
func NewMatcherGroup(matchers []AttributeMatcher, percentage float64,
	overwriteTraceState bool) MatcherGroup {
	return MatcherGroup{
		matchers:            matchers,
		percentage:          percentage,
		overwriteTraceState: overwriteTraceState,
	}
}

// Matches reports whether every matcher in the group accepts the attributes.
func (g MatcherGroup) Matches(attributes map[string]string) bool {
	for _, m := range g.matchers {
		if !m.Matches(attributes) {
			return false
		}
	}
	return true
}

// Percentage returns the sampling percentage the group applies.
func (g MatcherGroup) Percentage() float64 {
	return g.percentage
}

// OverwritesTraceState reports whether a decision made through this group
// replaces an inherited trace state rather than keeping it.
func (g MatcherGroup) OverwritesTraceState() bool {
	return g.overwriteTraceState
}

// Overrides is an ordered, immutable set of override groups. It is replaced
// as a unit on configuration reload, never partially mutated, so concurrent
// readers need no locking.
type Overrides struct {
	groups []MatcherGroup
}

// NewOverrides builds an override set. Evaluation order is the given order.
func NewOverrides(groups ...MatcherGroup) *Overrides {
	return &Overrides{groups: groups}
}

// Find returns the first group matching the attributes. Later groups are not
// evaluated once one matches.
func (o *Overrides) Find(attributes map[string]string) (MatcherGroup, bool) {
	if o == nil {
		return MatcherGroup{}, false
	}
	for _, g := range o.groups {
		if g.Matches(attributes) {
			return g, true
		}
	}
	return MatcherGroup{}, false
}
