package mikrotik

import (
	"fmt"
	"time"

	"github.com/metricsmith/routeros_exporter/internal/pool"
)

// Primary commands: failure of either fails the whole scrape.
const (
	cmdSystemResource = "/system/resource/print"
	cmdInterfaces     = "/interface/print"
)

// Optional commands: failure never fails the scrape; it yields empty data
// for that domain, or for VPN interfaces/peers the cached last reply when
// one is available.
const (
	cmdConntrackV4     = "/ip/firewall/connection/print"
	cmdConntrackV6     = "/ipv6/firewall/connection/print"
	cmdVPNInterfaces   = "/interface/wireguard/print"
	cmdVPNPeers        = "/interface/wireguard/peers/print"
)

// ReplyCache is the last-known-good store an optional command falls back
// to when the device fails to answer it this cycle. replycache.Cache
// satisfies this without either package importing the other's concrete
// types.
type ReplyCache interface {
	Store(router, command string, value any)
	Load(router, command string) (any, bool)
}

// Client issues the fixed RouterOS command set against one target using a
// connection leased from pool.
type Client struct {
	pool   *pool.Pool
	target pool.Target
	cache  ReplyCache
}

// NewClient constructs a Client bound to one target's pool key. cache may
// be nil, in which case optional-command failures yield empty data with
// no fallback.
func NewClient(p *pool.Pool, target pool.Target, cache ReplyCache) *Client {
	return &Client{pool: p, target: target, cache: cache}
}

// Collect issues the primary commands (system resource, interfaces) plus
// the optional commands (conntrack v4/v6, VPN interfaces/peers) over one
// leased connection. Failure of a primary command returns an error and
// fails this target's scrape; failure of an optional command does not fail
// the call. A failed conntrack command contributes no records; a failed VPN
// command uses the reply cached for this router when the cache holds one,
// and leaves that domain empty otherwise.
//
// The pool's success/error state is recorded by the caller (the scheduler)
// based on the returned error, strictly before the lease is released —
// Collect itself never calls Acquire/Release directly so that ordering
// constraint lives in one place.
func (c *Client) Collect(conn pool.Conn) (RouterSnapshot, error) {
	systemReply, err := conn.Run(cmdSystemResource, nil)
	if err != nil {
		return RouterSnapshot{}, fmt.Errorf("mikrotik: system resource: %w", err)
	}
	ifaceReply, err := conn.Run(cmdInterfaces, nil)
	if err != nil {
		return RouterSnapshot{}, fmt.Errorf("mikrotik: interfaces: %w", err)
	}

	snapshot := RouterSnapshot{
		RouterName: c.target.Name,
		System:     parseSystem(systemReply),
		Interfaces: parseInterfaces(ifaceReply),
	}

	now := time.Now()

	if reply, err := conn.Run(cmdConntrackV4, nil); err == nil {
		snapshot.Conntrack = append(snapshot.Conntrack, parseConntrack(reply, "ipv4")...)
	}
	if reply, err := conn.Run(cmdConntrackV6, nil); err == nil {
		snapshot.Conntrack = append(snapshot.Conntrack, parseConntrack(reply, "ipv6")...)
	}

	if reply, err := conn.Run(cmdVPNInterfaces, nil); err == nil {
		snapshot.VPNInterfaces = parseVPNInterfaces(reply)
		c.store(cmdVPNInterfaces, snapshot.VPNInterfaces)
	} else if cached, ok := c.load(cmdVPNInterfaces); ok {
		snapshot.VPNInterfaces = cached.([]VPNInterfaceRecord)
	}

	if reply, err := conn.Run(cmdVPNPeers, nil); err == nil {
		snapshot.VPNPeers = parseVPNPeers(reply, now)
		c.store(cmdVPNPeers, snapshot.VPNPeers)
	} else if cached, ok := c.load(cmdVPNPeers); ok {
		snapshot.VPNPeers = cached.([]VPNPeerRecord)
	}

	return snapshot, nil
}

func (c *Client) store(command string, value any) {
	if c.cache != nil {
		c.cache.Store(c.target.Name, command, value)
	}
}

func (c *Client) load(command string) (any, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.Load(c.target.Name, command)
}
