// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package limits implements the clamp-to-closest-bound policy applied to all
// numeric channel knobs: an out-of-range value is pulled to the nearest bound
// and logged, never rejected.
package limits

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Enforcer normalizes values of one named numeric setting into [min, max].
type Enforcer struct {
	name string
	min  int
	max  int
	def  int
}

// NewClosestEnforcer builds an enforcer that clamps out-of-range values to
// the closest bound. The bounds themselves are construction-time input and
// must be sane: min <= max and default within [min, max].
func NewClosestEnforcer(name string, minValue, maxValue, defaultValue int) (*Enforcer, error) {
	if name == "" {
		return nil, fmt.Errorf("enforcer name must be non-empty")
	}
	if minValue > maxValue {
		return nil, fmt.Errorf("%s: minimum %d exceeds maximum %d", name, minValue, maxValue)
	}
	if defaultValue < minValue || defaultValue > maxValue {
		return nil, fmt.Errorf("%s: default %d outside [%d, %d]",
			name, defaultValue, minValue, maxValue)
	}
	return &Enforcer{
		name: name,
		min:  minValue,
		max:  maxValue,
		def:  defaultValue,
	}, nil
}

// Normalize clamps v into [min, max], logging when it had to.
func (e *Enforcer) Normalize(v int) int {
	switch {
	case v < e.min:
		log.Warnf("%s: value %d below minimum, using %d", e.name, v, e.min)
		return e.min
	case v > e.max:
		log.Warnf("%s: value %d above maximum, using %d", e.name, v, e.max)
		return e.max
	default:
		return v
	}
}

// NormalizeString parses v and clamps the result. An unparsable value falls
// back to the default rather than failing: configuration typos degrade to
// defaults, they do not take the channel down.
func (e *Enforcer) NormalizeString(v string) int {
	if v == "" {
		return e.def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Errorf("%s: cannot parse %q as integer, using default %d", e.name, v, e.def)
		return e.def
	}
	return e.Normalize(n)
}

// Default returns the default value of the setting.
func (e *Enforcer) Default() int {
	return e.def
}

// Min returns the lower bound of the setting.
func (e *Enforcer) Min() int {
	return e.min
}

// Max returns the upper bound of the setting.
func (e *Enforcer) Max() int {
	return e.max
}
