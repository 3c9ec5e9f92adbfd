package ca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Araneidae/epics-ca/cadef"
)

func TestArenaInsertLookupRemove(t *testing.T) {
	var a arena[string]

	tok := a.insert("first")
	assert.NotZero(t, tok)
	assert.Equal(t, 1, a.len())

	v, ok := a.lookup(tok)
	require.True(t, ok)
	assert.Equal(t, "first", v)

	v, ok = a.remove(tok)
	require.True(t, ok)
	assert.Equal(t, "first", v)
	assert.Zero(t, a.len())

	_, ok = a.lookup(tok)
	assert.False(t, ok)
	_, ok = a.remove(tok)
	assert.False(t, ok, "second remove of the same token")
}

func TestArenaStaleTokenAfterReuse(t *testing.T) {
	var a arena[string]

	old := a.insert("old")
	_, ok := a.remove(old)
	require.True(t, ok)

	fresh := a.insert("new")
	oldIndex, _ := splitToken(old)
	freshIndex, _ := splitToken(fresh)
	require.Equal(t, oldIndex, freshIndex, "slot is reused")
	assert.NotEqual(t, old, fresh)

	_, ok = a.lookup(old)
	assert.False(t, ok, "stale token must not resolve to the new occupant")

	v, ok := a.lookup(fresh)
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestArenaInvalidTokens(t *testing.T) {
	var a arena[int]
	a.insert(1)

	for _, tok := range []cadef.Token{0, makeToken(5, 1), makeToken(0, 7)} {
		_, ok := a.lookup(tok)
		assert.False(t, ok, "token %#x", uint64(tok))
	}
}

func TestArenaManySlots(t *testing.T) {
	var a arena[int]
	tokens := make([]cadef.Token, 100)
	for i := range tokens {
		tokens[i] = a.insert(i)
	}
	for i, tok := range tokens {
		v, ok := a.lookup(tok)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	for _, tok := range tokens[:50] {
		a.remove(tok)
	}
	assert.Equal(t, 50, a.len())
}
