package replycache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLoadRoundTrip(t *testing.T) {
	c := New()
	c.Store("router1", "/interface/wireguard/peers/print", []string{"peer1"})

	v, ok := c.Load("router1", "/interface/wireguard/peers/print")
	require.True(t, ok)
	assert.Equal(t, []string{"peer1"}, v)
}

func TestLoadMissingKeyReturnsFalse(t *testing.T) {
	c := New()
	_, ok := c.Load("router1", "/interface/wireguard/peers/print")
	assert.False(t, ok)
}

func TestLoadDoesNotLeakAcrossRoutersOrCommands(t *testing.T) {
	c := New()
	c.Store("router1", "/interface/wireguard/print", "a")
	c.Store("router2", "/interface/wireguard/print", "b")
	c.Store("router1", "/interface/wireguard/peers/print", "c")

	v1, _ := c.Load("router1", "/interface/wireguard/print")
	v2, _ := c.Load("router2", "/interface/wireguard/print")
	v3, _ := c.Load("router1", "/interface/wireguard/peers/print")

	assert.Equal(t, "a", v1)
	assert.Equal(t, "b", v2)
	assert.Equal(t, "c", v3)
}

func TestPurgeRouterRemovesOnlyThatRoutersEntries(t *testing.T) {
	c := New()
	c.Store("gone", "/interface/wireguard/print", "x")
	c.Store("gone", "/interface/wireguard/peers/print", "y")
	c.Store("stays", "/interface/wireguard/print", "z")

	c.PurgeRouter("gone")

	_, ok := c.Load("gone", "/interface/wireguard/print")
	assert.False(t, ok)
	_, ok = c.Load("gone", "/interface/wireguard/peers/print")
	assert.False(t, ok)

	v, ok := c.Load("stays", "/interface/wireguard/print")
	assert.True(t, ok)
	assert.Equal(t, "z", v)
}

func TestItemCountReflectsStoredEntries(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.ItemCount())
	c.Store("router1", "/interface/wireguard/print", "a")
	c.Store("router1", "/interface/wireguard/peers/print", "b")
	assert.Equal(t, 2, c.ItemCount())
}
