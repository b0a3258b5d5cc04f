// Package agent resolves who is driving an escalator invocation.
package agent

import (
	"fmt"
	"os"
	"os/user"
	"strings"
)

// EnvActor overrides actor detection.
const EnvActor = "ESCALATOR_ACTOR"

// SystemPrefix marks actors that are processes rather than staff.
const SystemPrefix = "system:"

// ActorType represents the kind of actor
type ActorType string

const (
	ActorTypeStaff  ActorType = "STAFF"
	ActorTypeSystem ActorType = "SYSTEM"
)

// ActorIdentity represents a parsed actor ID
type ActorIdentity struct {
	Type   ActorType
	ID     string // Staff user ID, or the process name for system actors
	FullID string // Complete ID like "USR-042" or "system:scheduler"
}

// GetCurrentActorID detects the current actor.
// ESCALATOR_ACTOR wins; otherwise the OS login name is used as a staff ID.
func GetCurrentActorID() (*ActorIdentity, error) {
	if v := strings.TrimSpace(os.Getenv(EnvActor)); v != "" {
		return ParseActorID(v)
	}

	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return ParseActorID(u.Username)
}

// ParseActorID parses an actor ID string like "USR-042" or "system:scheduler"
func ParseActorID(actorID string) (*ActorIdentity, error) {
	if actorID == "" {
		return nil, fmt.Errorf("actor ID is empty")
	}
	if strings.ContainsAny(actorID, " \t\n") {
		return nil, fmt.Errorf("invalid actor ID %q: must not contain whitespace", actorID)
	}

	if name, ok := strings.CutPrefix(actorID, SystemPrefix); ok {
		if name == "" {
			return nil, fmt.Errorf("invalid actor ID %q (expected system:<name>)", actorID)
		}
		return &ActorIdentity{
			Type:   ActorTypeSystem,
			ID:     name,
			FullID: actorID,
		}, nil
	}

	return &ActorIdentity{
		Type:   ActorTypeStaff,
		ID:     actorID,
		FullID: actorID,
	}, nil
}
