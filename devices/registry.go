// Package devices reads the external device registry and produces the bounded,
// human-readable snapshots that feed the system prompt.
package devices

import "strings"

// SurfaceConversation marks a device as visible to the conversational agent.
const SurfaceConversation = "conversation"

// State is one device's current state as reported by the registry.
type State struct {
	EntityID     string
	State        string
	FriendlyName string
	Attributes   map[string]interface{}
}

// Domain returns the entity id's domain prefix ("light" for "light.kitchen").
func (s State) Domain() string {
	if i := strings.IndexByte(s.EntityID, '.'); i >= 0 {
		return s.EntityID[:i]
	}
	return s.EntityID
}

// Name returns the friendly name, falling back to the entity id.
func (s State) Name() string {
	if s.FriendlyName != "" {
		return s.FriendlyName
	}
	return s.EntityID
}

// Registry is the narrow query interface onto the externally-owned device
// registry. It is read-only from this system's perspective and is queried
// fresh on every snapshot; results are never cached across prompt generations.
type Registry interface {
	// ListStates returns the state of every known device. An unreachable
	// registry returns an error; it must not be reported as an empty set.
	ListStates() ([]State, error)
	// IsExposed reports whether the device is exposed on the given surface.
	IsExposed(entityID, surface string) bool
	// AreaOf returns the area id the device belongs to, if any.
	AreaOf(entityID string) (string, bool)
	// AreaName resolves an area id to its display name.
	AreaName(areaID string) (string, bool)
}
