package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metricsmith/routeros_exporter/internal/routeros"
)

type okConn struct {
	loginOK bool
}

func (c *okConn) Run(string, map[string]string) ([]routeros.Sentence, error) { return nil, nil }
func (c *okConn) Login(user, password string) error {
	if c.loginOK {
		return nil
	}
	return errors.New("login rejected")
}
func (c *okConn) Close() error { return nil }

type trackingConn struct {
	loginOK bool
	onClose func()
}

func (c *trackingConn) Run(string, map[string]string) ([]routeros.Sentence, error) {
	return nil, nil
}
func (c *trackingConn) Login(user, password string) error {
	if c.loginOK {
		return nil
	}
	return errors.New("login rejected")
}
func (c *trackingConn) Close() error {
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

func TestAcquireBackoffGateAfterThreeErrors(t *testing.T) {
	dials := 0
	dial := func(addr string) (Conn, error) {
		dials++
		return nil, errors.New("connect refused")
	}
	p := New(dial, nil)
	defer p.Shutdown()

	key := Key{Address: "10.0.0.1:8728", User: "admin"}
	secret := Secret("x")

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(key, secret)
		require.Error(t, err)
	}
	require.Equal(t, 3, dials)

	_, err := p.Acquire(key, secret)
	require.ErrorIs(t, err, ErrBackoff)
	require.Equal(t, 3, dials, "backoff gate must not attempt network I/O")
}

func TestAcquireSuccessResetsConsecutiveErrors(t *testing.T) {
	fail := true
	dial := func(addr string) (Conn, error) {
		return &okConn{loginOK: !fail}, nil
	}
	p := New(dial, nil)
	defer p.Shutdown()

	key := Key{Address: "10.0.0.1:8728", User: "admin"}
	secret := Secret("x")

	for i := 0; i < 2; i++ {
		_, err := p.Acquire(key, secret)
		require.Error(t, err)
	}
	errs, _, ok := p.State(key)
	require.True(t, ok)
	require.Equal(t, 2, errs)

	fail = false
	lease, err := p.Acquire(key, secret)
	require.NoError(t, err)
	lease.Release()

	errs, everSucceeded, ok := p.State(key)
	require.True(t, ok)
	assert.Equal(t, 0, errs)
	assert.True(t, everSucceeded)
}

func TestUseReleasesOnPanic(t *testing.T) {
	dial := func(addr string) (Conn, error) {
		return &okConn{loginOK: true}, nil
	}
	p := New(dial, nil)
	defer p.Shutdown()

	key := Key{Address: "10.0.0.1:8728", User: "admin"}

	assert.Panics(t, func() {
		_ = p.Use(key, Secret("x"), func(Conn) error {
			panic("boom")
		})
	})

	total, leased := p.Stats()
	assert.Equal(t, 0, leased, "lease must be released even after a panic")
	assert.Equal(t, 0, total, "a lease discarded after panic must not be pooled")
}

func TestUseReleasesOnNormalReturn(t *testing.T) {
	dial := func(addr string) (Conn, error) {
		return &okConn{loginOK: true}, nil
	}
	p := New(dial, nil)
	defer p.Shutdown()

	key := Key{Address: "10.0.0.1:8728", User: "admin"}
	err := p.Use(key, Secret("x"), func(Conn) error { return nil })
	require.NoError(t, err)

	total, leased := p.Stats()
	assert.Equal(t, 0, leased)
	assert.Equal(t, 1, total, "a clean release should return the connection to the pool")
}

func TestUseDiscardsOnError(t *testing.T) {
	var closed bool
	dial := func(addr string) (Conn, error) {
		return &trackingConn{loginOK: true, onClose: func() { closed = true }}, nil
	}
	p := New(dial, nil)
	defer p.Shutdown()

	key := Key{Address: "10.0.0.1:8728", User: "admin"}
	err := p.Use(key, Secret("x"), func(Conn) error { return errors.New("command failed") })
	require.Error(t, err)

	total, _ := p.Stats()
	assert.Equal(t, 0, total, "a lease released after a command error must be discarded, not pooled")
	assert.True(t, closed)
}

func TestIdleConnectionIsReused(t *testing.T) {
	dials := 0
	dial := func(addr string) (Conn, error) {
		dials++
		return &okConn{loginOK: true}, nil
	}
	p := New(dial, nil)
	defer p.Shutdown()

	key := Key{Address: "10.0.0.1:8728", User: "admin"}
	lease, err := p.Acquire(key, Secret("x"))
	require.NoError(t, err)
	lease.Release()

	lease2, err := p.Acquire(key, Secret("x"))
	require.NoError(t, err)
	lease2.Release()

	assert.Equal(t, 1, dials, "second acquire should reuse the pooled connection")
}

func TestCleanupStatesRemovesUnconfiguredKeys(t *testing.T) {
	dial := func(addr string) (Conn, error) { return nil, errors.New("refused") }
	p := New(dial, nil)
	defer p.Shutdown()

	key := Key{Address: "10.0.0.1:8728", User: "admin"}
	_, _ = p.Acquire(key, Secret("x"))
	_, _, ok := p.State(key)
	require.True(t, ok)

	p.CleanupStates(map[Key]struct{}{})
	_, _, ok = p.State(key)
	assert.False(t, ok)
}
