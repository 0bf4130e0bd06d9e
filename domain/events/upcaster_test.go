package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpcasterIdentityByDefault(t *testing.T) {
	registry := NewUpcasterRegistry()
	e := NewDomainEvent("agg-1", BookCreated, 1, map[string]interface{}{"title": "t"})

	out, err := registry.Apply(e)
	require.NoError(t, err)
	assert.Equal(t, e, out)
}

func TestUpcasterChainsToLatestVersion(t *testing.T) {
	registry := NewUpcasterRegistry()

	require.NoError(t, registry.Register(BookCreated, 1, 2, func(e DomainEvent) (DomainEvent, error) {
		e.Payload["author"] = "unknown"
		return e, nil
	}))
	require.NoError(t, registry.Register(BookCreated, 2, 3, func(e DomainEvent) (DomainEvent, error) {
		e.Payload["isbn"] = ""
		return e, nil
	}))

	out, err := registry.Apply(NewDomainEvent("agg-1", BookCreated, 1, map[string]interface{}{"title": "t"}))
	require.NoError(t, err)
	assert.Equal(t, 3, out.SchemaVersion)
	assert.Equal(t, "unknown", out.PayloadString("author"))
	assert.Contains(t, out.Payload, "isbn")
}

func TestUpcasterRegistrationRules(t *testing.T) {
	registry := NewUpcasterRegistry()
	identity := func(e DomainEvent) (DomainEvent, error) { return e, nil }

	require.NoError(t, registry.Register(BookCreated, 1, 2, identity))
	assert.Error(t, registry.Register(BookCreated, 1, 2, identity))
	assert.Error(t, registry.Register(BookUpdated, 2, 2, identity))
}
