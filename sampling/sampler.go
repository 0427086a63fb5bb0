// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampling implements deterministic trace-id based sampling: a pure
// keep/drop function of the correlation key, the percentage in effect and an
// ordered set of attribute-matcher overrides.
package sampling

import (
	"fmt"

	lru "github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
)

// scoreCacheSize bounds the per-trace score cache. Trace ids repeat heavily
// within one operation, so even a small cache removes most rehashing.
const scoreCacheSize = 8192

// FallbackBehavior selects what the sampler does when no override matches.
type FallbackBehavior int

const (
	// UseDefaultPercentage applies the default sampling percentage. Used at
	// trace roots where no upstream decision exists.
	UseDefaultPercentage FallbackBehavior = iota

	// RecordAndSample keeps the event unconditionally. Used when a parent
	// decision was already made upstream (local or remote parent sampled).
	RecordAndSample
)

func (b FallbackBehavior) String() string {
	switch b {
	case UseDefaultPercentage:
		return "use-default-percentage"
	case RecordAndSample:
		return "record-and-sample"
	default:
		return fmt.Sprintf("unknown-fallback-behavior(%d)", int(b))
	}
}

// Decision is the outcome of a sampling evaluation. Percentage is the
// sampling percentage actually applied and is what downstream annotates onto
// kept events.
type Decision struct {
	Sampled             bool
	Percentage          float64
	OverwriteTraceState bool
}

// Sampler makes deterministic keep/drop decisions. It holds no mutable state
// besides a bounded score cache, so concurrent use needs no external locking.
type Sampler struct {
	defaultPercentage float64
	overrides         *Overrides
	fallback          FallbackBehavior

	// scores caches the computed score per correlation key.
	scores *lru.SyncedLRU[string, float64]
}

// hashString is the hash function for the score cache keys.
func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// New builds a sampler. An out-of-range default percentage or an unknown
// fallback behavior is a configuration error and fails immediately.
// Percentages outside the 100/N family are accepted with a warning; the
// resulting proportion estimates are biased (known caveat).
func New(defaultPercentage float64, overrides *Overrides,
	fallback FallbackBehavior) (*Sampler, error) {
	if defaultPercentage < 0 || defaultPercentage > 100 {
		return nil, fmt.Errorf("sampling percentage %g outside [0, 100]", defaultPercentage)
	}
	switch fallback {
	case UseDefaultPercentage, RecordAndSample:
	default:
		return nil, fmt.Errorf("unexpected fallback behavior %d", int(fallback))
	}
	if defaultPercentage > 0 && !IsRoundPercentage(defaultPercentage) {
		log.Warnf("sampling percentage %g is not of the form 100/N; "+
			"downstream proportion estimates will be biased", defaultPercentage)
	}
	scores, err := lru.NewSynced[string, float64](scoreCacheSize, hashString)
	if err != nil {
		return nil, fmt.Errorf("score cache: %w", err)
	}
	return &Sampler{
		defaultPercentage: defaultPercentage,
		overrides:         overrides,
		fallback:          fallback,
		scores:            scores,
	}, nil
}

// DefaultPercentage returns the percentage applied at trace roots when no
// override matches.
func (s *Sampler) DefaultPercentage() float64 {
	return s.defaultPercentage
}

// Decide evaluates the overrides in order and falls back to the configured
// behavior when none matches. Repeated calls with identical inputs always
// return the same decision.
func (s *Sampler) Decide(correlationKey string, attributes map[string]string) Decision {
	if group, ok := s.overrides.Find(attributes); ok {
		return s.decide(correlationKey, group.Percentage(), group.OverwritesTraceState())
	}
	switch s.fallback {
	case RecordAndSample:
		// Parent already sampled; keep without rescoring. Percentage carries
		// the approximate in-effect value for attribute annotation.
		return Decision{Sampled: true, Percentage: s.defaultPercentage}
	case UseDefaultPercentage:
		return s.decide(correlationKey, s.defaultPercentage, false)
	default:
		// New rejects any other value; reaching this is a programming error.
		panic(fmt.Sprintf("unexpected fallback behavior: %s", s.fallback))
	}
}

func (s *Sampler) decide(correlationKey string, percentage float64,
	overwriteTraceState bool) Decision {
	if percentage == 100 {
		// No need to compute the score.
		return Decision{Sampled: true, Percentage: 100, OverwriteTraceState: overwriteTraceState}
	}
	if percentage == 0 {
		return Decision{Percentage: 0, OverwriteTraceState: overwriteTraceState}
	}
	if s.score(correlationKey) >= percentage {
		log.Debugf("Trace %s sampled out at %g%%", correlationKey, percentage)
		return Decision{Percentage: percentage, OverwriteTraceState: overwriteTraceState}
	}
	return Decision{Sampled: true, Percentage: percentage, OverwriteTraceState: overwriteTraceState}
}

func (s *Sampler) score(correlationKey string) float64 {
	if v, ok := s.scores.Get(correlationKey); ok {
		return v
	}
	v := Score(correlationKey)
	s.scores.Add(correlationKey, v)
	return v
}
