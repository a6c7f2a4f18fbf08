// Package priority resolves the effective study priority of a category
// from the admin setting, the user setting and the tenant override mode.
package priority

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MinLevel     = 1
	MaxLevel     = 10
	DefaultLevel = 5

	// LowMastery and HighMastery bound the band in which mastery leaves the
	// priority untouched.
	LowMastery  = 0.4
	HighMastery = 0.85

	LowMasteryBoost     = 1.5
	HighMasteryDampener = 0.5
)

// ErrLevelOutOfRange is returned for priority levels outside 1..10.
var ErrLevelOutOfRange = errors.New("priority level out of range")

// OverrideMode decides how admin and user priorities combine.
type OverrideMode string

const (
	AdminOnly          OverrideMode = "ADMIN_ONLY"
	UserOnly           OverrideMode = "USER_ONLY"
	AdminOverridesUser OverrideMode = "ADMIN_OVERRIDES_USER"
	UserOverridesAdmin OverrideMode = "USER_OVERRIDES_ADMIN"

	// DefaultMode applies when a tenant has no setting or an unknown one.
	DefaultMode = UserOverridesAdmin
)

// Modes lists every supported override mode.
var Modes = []OverrideMode{AdminOnly, UserOnly, AdminOverridesUser, UserOverridesAdmin}

// Valid reports whether m is one of the known modes.
func (m OverrideMode) Valid() bool {
	switch m {
	case AdminOnly, UserOnly, AdminOverridesUser, UserOverridesAdmin:
		return true
	}
	return false
}

// ParseOverrideMode maps a stored setting to a mode. Matching ignores case
// and surrounding space; anything unrecognised becomes DefaultMode.
func ParseOverrideMode(s string) OverrideMode {
	m := OverrideMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return DefaultMode
	}
	return m
}

// Inputs are the settings for one category. Nil means "not set".
type Inputs struct {
	Admin *int
	User  *int
	Mode  OverrideMode
}

// Resolve returns the effective priority, 1..10, for one category.
func Resolve(in Inputs) int {
	var level *int
	switch in.Mode {
	case AdminOnly:
		level = in.Admin
	case UserOnly:
		level = in.User
	case AdminOverridesUser:
		level = first(in.Admin, in.User)
	default:
		// UserOverridesAdmin, and the documented fallback for unknown modes.
		level = first(in.User, in.Admin)
	}
	if level == nil {
		return DefaultLevel
	}
	return clamp(*level)
}

func first(levels ...*int) *int {
	for _, l := range levels {
		if l != nil {
			return l
		}
	}
	return nil
}

func clamp(level int) int {
	return min(max(level, MinLevel), MaxLevel)
}

// ApplyMasteryWeight biases a priority towards weak areas: poorly mastered
// cards are boosted, well mastered ones are damped. The result is only
// meaningful for ordering.
func ApplyMasteryWeight(base int, mastery float64) float64 {
	w := float64(base)
	switch {
	case mastery < LowMastery:
		return w * LowMasteryBoost
	case mastery > HighMastery:
		return w * HighMasteryDampener
	default:
		return w
	}
}

// ValidateLevel checks a level before it is stored.
func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: %d", ErrLevelOutOfRange, level)
	}
	return nil
}

// ParseLevel parses and validates a level given as text.
func ParseLevel(s string) (int, error) {
	level, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse priority level %q: %w", s, err)
	}
	if err := ValidateLevel(level); err != nil {
		return 0, err
	}
	return level, nil
}
