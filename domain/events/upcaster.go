package events

import (
	"fmt"
	"sync"
)

// Upcaster rewrites an event from one schema version to the next. Upcasters
// must be pure: no I/O, no mutation of the input.
type Upcaster func(DomainEvent) (DomainEvent, error)

type upcasterKey struct {
	eventType   string
	fromVersion int
}

// UpcasterRegistry chains registered upcasters until an event reaches the
// newest schema version it knows about. With no registrations it is the
// identity transform.
type UpcasterRegistry struct {
	mu        sync.RWMutex
	upcasters map[upcasterKey]registeredUpcaster
}

type registeredUpcaster struct {
	toVersion int
	fn        Upcaster
}

// NewUpcasterRegistry creates an empty registry.
func NewUpcasterRegistry() *UpcasterRegistry {
	return &UpcasterRegistry{
		upcasters: make(map[upcasterKey]registeredUpcaster),
	}
}

// Register installs an upcaster for eventType that lifts schema fromVersion
// to toVersion. Registering the same (eventType, fromVersion) twice is an
// error; upgrade paths must be unambiguous.
func (r *UpcasterRegistry) Register(eventType string, fromVersion, toVersion int, fn Upcaster) error {
	if toVersion <= fromVersion {
		return fmt.Errorf("upcaster for %s must increase schema version: %d -> %d", eventType, fromVersion, toVersion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := upcasterKey{eventType: eventType, fromVersion: fromVersion}
	if _, exists := r.upcasters[key]; exists {
		return fmt.Errorf("upcaster already registered for %s schema v%d", eventType, fromVersion)
	}
	r.upcasters[key] = registeredUpcaster{toVersion: toVersion, fn: fn}
	return nil
}

// Apply upgrades an event step by step until no upcaster matches its current
// schema version.
func (r *UpcasterRegistry) Apply(event DomainEvent) (DomainEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := event
	for {
		reg, ok := r.upcasters[upcasterKey{eventType: current.EventType, fromVersion: current.SchemaVersion}]
		if !ok {
			return current, nil
		}
		upgraded, err := reg.fn(current)
		if err != nil {
			return DomainEvent{}, fmt.Errorf("upcast %s from schema v%d: %w", current.EventType, current.SchemaVersion, err)
		}
		upgraded.SchemaVersion = reg.toVersion
		current = upgraded
	}
}
