package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safirbus/holdcoord/internal/store"
)

func TestClientIDStableWithinSession(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	first := ClientID(ctx, s)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, ClientID(ctx, s))
	assert.Equal(t, first, ClientID(ctx, s))
}

func TestClientIDDegradesWithoutPersistence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	s.FailWrites = true

	first := ClientID(ctx, s)
	second := ClientID(ctx, s)
	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	// no persistence means a fresh id per call, which is acceptable
	assert.NotEqual(t, first, second)
}
