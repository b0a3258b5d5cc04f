// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle argument parsing, output formatting,
// but delegate business logic to services.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/example/escalator/internal/core/chain"
)

// ParseLevelSpec parses a level given on the command line as
//
//	<recipient>:<method>:<after>[:ack][:manual]
//
// where recipient is a role name or @USER-ID, and after is a count with an
// m, h or d suffix. Levels auto-escalate unless marked manual.
func ParseLevelSpec(number int, spec string) (chain.Level, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 {
		return chain.Level{}, fmt.Errorf("level %d: expected <recipient>:<method>:<after>[:ack][:manual], got %q", number, spec)
	}

	level := chain.Level{
		Number:             number,
		NotificationMethod: parts[1],
		AutoEscalate:       true,
	}
	if user, ok := strings.CutPrefix(parts[0], "@"); ok {
		level.SpecificUserID = user
	} else {
		level.ResponsibleRole = parts[0]
	}

	after, err := ParseAfter(parts[2])
	if err != nil {
		return chain.Level{}, fmt.Errorf("level %d: %w", number, err)
	}
	level.EscalateAfter = after

	for _, flag := range parts[3:] {
		switch flag {
		case "ack":
			level.RequiresAcknowledgment = true
		case "manual":
			level.AutoEscalate = false
		default:
			return chain.Level{}, fmt.Errorf("level %d: unknown flag %q (want ack or manual)", number, flag)
		}
	}
	return level, nil
}

// ParseLevelSpecs numbers specs from 1 in the order given.
func ParseLevelSpecs(specs []string) ([]chain.Level, error) {
	levels := make([]chain.Level, 0, len(specs))
	for i, spec := range specs {
		level, err := ParseLevelSpec(i+1, spec)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// ParseAfter parses "30m", "2h" or "1d".
func ParseAfter(s string) (chain.Duration, error) {
	if len(s) < 2 {
		return chain.Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return chain.Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return chain.Duration{Value: value, Unit: chain.UnitMinutes}, nil
	case 'h':
		return chain.Duration{Value: value, Unit: chain.UnitHours}, nil
	case 'd':
		return chain.Duration{Value: value, Unit: chain.UnitDays}, nil
	default:
		return chain.Duration{}, fmt.Errorf("invalid duration %q (suffix must be m, h or d)", s)
	}
}

// FormatAfter renders a duration the way ParseAfter reads it.
func FormatAfter(d chain.Duration) string {
	switch d.Unit {
	case chain.UnitHours:
		return fmt.Sprintf("%dh", d.Value)
	case chain.UnitDays:
		return fmt.Sprintf("%dd", d.Value)
	default:
		return fmt.Sprintf("%dm", d.Value)
	}
}
