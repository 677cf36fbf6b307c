package preference

import (
	"fmt"
	"strings"
)

// Policy decides whether enough is known to generate candidates. userTurns is
// the number of user utterances in the conversation so far.
type Policy func(s Store, userTurns int) bool

// AnyKnown is ready once a single field is known.
func AnyKnown(s Store, _ int) bool {
	return s.KnownCount() > 0
}

// AllKnown is ready only when every field is known.
func AllKnown(s Store, _ int) bool {
	return s.KnownCount() == len(s.Fields())
}

// AfterTurns is ready once at least one field is known and the user has spoken n times.
func AfterTurns(n int) Policy {
	return func(s Store, userTurns int) bool {
		return AnyKnown(s, userTurns) && userTurns >= n
	}
}

// ParsePolicy maps a configuration name to a policy: "any", "all" or "turns".
func ParsePolicy(name string, turns int) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "any":
		return AnyKnown, nil
	case "all":
		return AllKnown, nil
	case "turns":
		if turns <= 0 {
			return nil, fmt.Errorf("readiness policy %q needs a positive turn count, got %d", name, turns)
		}
		return AfterTurns(turns), nil
	default:
		return nil, fmt.Errorf("unknown readiness policy %q", name)
	}
}
