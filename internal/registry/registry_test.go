package registry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/metricsmith/routeros_exporter/internal/mikrotik"
)

func makeSnapshot(router string, ifaces []mikrotik.InterfaceRecord) mikrotik.RouterSnapshot {
	return mikrotik.RouterSnapshot{
		RouterName: router,
		Interfaces: ifaces,
		System: mikrotik.SystemRecord{
			Uptime: "1d", CPULoad: 10, FreeMemory: 1024, TotalMemory: 2048,
			Version: "7.10", BoardName: "RB750Gr3",
		},
	}
}

func iface(name string, rx, tx, rxp, txp uint64) mikrotik.InterfaceRecord {
	return mikrotik.InterfaceRecord{Name: name, RxBytes: rx, TxBytes: tx, RxPackets: rxp, TxPackets: txp, Running: true}
}

func TestUpdateFirstObservationYieldsZeroDelta(t *testing.T) {
	r := New()
	r.Update(makeSnapshot("router1", []mikrotik.InterfaceRecord{iface("ether1", 1000, 2000, 10, 20)}))

	assert.Equal(t, float64(0), testutil.ToFloat64(r.interfaceRxBytes.WithLabelValues("router1", "ether1")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.interfaceTxBytes.WithLabelValues("router1", "ether1")))
}

func TestUpdateComputesDelta(t *testing.T) {
	r := New()
	r.Update(makeSnapshot("router1", []mikrotik.InterfaceRecord{iface("ether1", 1000, 2000, 10, 20)}))
	r.Update(makeSnapshot("router1", []mikrotik.InterfaceRecord{iface("ether1", 1500, 2500, 15, 25)}))

	assert.Equal(t, float64(500), testutil.ToFloat64(r.interfaceRxBytes.WithLabelValues("router1", "ether1")))
	assert.Equal(t, float64(500), testutil.ToFloat64(r.interfaceTxBytes.WithLabelValues("router1", "ether1")))
	assert.Equal(t, float64(5), testutil.ToFloat64(r.interfaceRxPackets.WithLabelValues("router1", "ether1")))
}

func TestUpdateCounterResetSaturatesToZero(t *testing.T) {
	r := New()
	r.Update(makeSnapshot("router1", []mikrotik.InterfaceRecord{iface("ether1", 5000, 6000, 50, 60)}))
	r.Update(makeSnapshot("router1", []mikrotik.InterfaceRecord{iface("ether1", 1000, 2000, 10, 20)}))

	assert.Equal(t, float64(0), testutil.ToFloat64(r.interfaceRxBytes.WithLabelValues("router1", "ether1")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.interfaceTxBytes.WithLabelValues("router1", "ether1")))
}

func TestSystemInfoResetsOnVersionChange(t *testing.T) {
	r := New()
	r.Update(makeSnapshot("router1", nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.systemInfo.WithLabelValues("router1", "7.10", "RB750Gr3")))

	snap := makeSnapshot("router1", nil)
	snap.System.Version = "7.11"
	r.Update(snap)

	assert.Equal(t, float64(0), testutil.ToFloat64(r.systemInfo.WithLabelValues("router1", "7.10", "RB750Gr3")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.systemInfo.WithLabelValues("router1", "7.11", "RB750Gr3")))
}

func TestConntrackMultiRouterIsolation(t *testing.T) {
	r := New()
	a1 := mikrotik.RouterSnapshot{RouterName: "A", Conntrack: []mikrotik.ConntrackRecord{
		{SrcAddress: "192.168.1.1", Protocol: "tcp", ConnectionCount: 100, IPVersion: "ipv4"},
	}}
	b1 := mikrotik.RouterSnapshot{RouterName: "B", Conntrack: []mikrotik.ConntrackRecord{
		{SrcAddress: "10.0.0.1", Protocol: "tcp", ConnectionCount: 200, IPVersion: "ipv4"},
	}}
	r.Update(a1)
	r.Update(b1)

	a2 := mikrotik.RouterSnapshot{RouterName: "A", Conntrack: []mikrotik.ConntrackRecord{
		{SrcAddress: "192.168.1.1", Protocol: "tcp", ConnectionCount: 150, IPVersion: "ipv4"},
	}}
	r.Update(a2)

	assert.Equal(t, float64(150), testutil.ToFloat64(r.connectionTrackingCount.WithLabelValues("A", "192.168.1.1", "tcp", "ipv4")))
	assert.Equal(t, float64(200), testutil.ToFloat64(r.connectionTrackingCount.WithLabelValues("B", "10.0.0.1", "tcp", "ipv4")))
}

func TestConntrackStaleTupleResetsToZero(t *testing.T) {
	r := New()
	r.Update(mikrotik.RouterSnapshot{RouterName: "A", Conntrack: []mikrotik.ConntrackRecord{
		{SrcAddress: "1.1.1.1", Protocol: "tcp", ConnectionCount: 5, IPVersion: "ipv4"},
		{SrcAddress: "2.2.2.2", Protocol: "udp", ConnectionCount: 3, IPVersion: "ipv4"},
	}})
	r.Update(mikrotik.RouterSnapshot{RouterName: "A", Conntrack: []mikrotik.ConntrackRecord{
		{SrcAddress: "1.1.1.1", Protocol: "tcp", ConnectionCount: 7, IPVersion: "ipv4"},
	}})

	assert.Equal(t, float64(7), testutil.ToFloat64(r.connectionTrackingCount.WithLabelValues("A", "1.1.1.1", "tcp", "ipv4")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.connectionTrackingCount.WithLabelValues("A", "2.2.2.2", "udp", "ipv4")))
}

func TestVPNPeerDedupPrefersMostRecentHandshake(t *testing.T) {
	older := int64(100)
	newer := int64(200)
	snap := mikrotik.RouterSnapshot{RouterName: "A", VPNPeers: []mikrotik.VPNPeerRecord{
		{Interface: "wg1", AllowedAddress: "10.0.0.1/32", Name: "a", RxBytes: 10, TxBytes: 10, LatestHandshake: &older},
		{Interface: "wg1", AllowedAddress: "10.0.0.1/32", Name: "b", RxBytes: 999, TxBytes: 999, LatestHandshake: &newer},
	}}
	r := New()
	r.Update(snap)

	assert.Equal(t, float64(200), testutil.ToFloat64(r.vpnPeerLatestHandshake.WithLabelValues("A", "wg1", "10.0.0.1/32")))
	assert.Equal(t, float64(999), testutil.ToFloat64(r.vpnPeerRxBytes.WithLabelValues("A", "wg1", "10.0.0.1/32")))
}

func TestVPNPeerDedupFallsBackToByteTotalWhenNoHandshake(t *testing.T) {
	snap := mikrotik.RouterSnapshot{RouterName: "A", VPNPeers: []mikrotik.VPNPeerRecord{
		{Interface: "wg1", AllowedAddress: "10.0.0.1/32", RxBytes: 10, TxBytes: 10},
		{Interface: "wg1", AllowedAddress: "10.0.0.1/32", RxBytes: 100, TxBytes: 100},
	}}
	r := New()
	r.Update(snap)

	assert.Equal(t, float64(100), testutil.ToFloat64(r.vpnPeerRxBytes.WithLabelValues("A", "wg1", "10.0.0.1/32")))
}

func TestVPNPeerWithHandshakeBeatsPeerWithout(t *testing.T) {
	ts := int64(50)
	snap := mikrotik.RouterSnapshot{RouterName: "A", VPNPeers: []mikrotik.VPNPeerRecord{
		{Interface: "wg1", AllowedAddress: "10.0.0.1/32", RxBytes: 9999, TxBytes: 9999},
		{Interface: "wg1", AllowedAddress: "10.0.0.1/32", RxBytes: 1, TxBytes: 1, LatestHandshake: &ts},
	}}
	r := New()
	r.Update(snap)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.vpnPeerRxBytes.WithLabelValues("A", "wg1", "10.0.0.1/32")))
}

func TestCleanupStaleInterfacesRemovesUnobservedInterface(t *testing.T) {
	r := New()
	r.Update(makeSnapshot("router1", []mikrotik.InterfaceRecord{iface("ether1", 100, 100, 1, 1), iface("ether2", 50, 50, 1, 1)}))

	r.CleanupStaleInterfaces(map[string][]string{"router1": {"ether1"}})

	r.mu.Lock()
	_, stillTracked := r.prevIface[interfaceLabels{router: "router1", iface: "ether2"}]
	r.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestCleanupExpiredDynamicLabelsRemovesPastTTL(t *testing.T) {
	r := New()
	r.Update(mikrotik.RouterSnapshot{RouterName: "A", Conntrack: []mikrotik.ConntrackRecord{
		{SrcAddress: "1.1.1.1", Protocol: "tcp", ConnectionCount: 1, IPVersion: "ipv4"},
	}})

	r.mu.Lock()
	for labels := range r.conntrackLastSeen {
		r.conntrackLastSeen[labels] = time.Now().Add(-time.Hour)
	}
	r.mu.Unlock()

	r.CleanupExpiredDynamicLabels(time.Minute)

	r.mu.Lock()
	count := len(r.conntrackLastSeen)
	r.mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestCleanupStaleRoutersRemovesEverythingForRemovedRouter(t *testing.T) {
	r := New()
	r.Update(makeSnapshot("gone", []mikrotik.InterfaceRecord{iface("ether1", 1, 1, 1, 1)}))
	r.Update(makeSnapshot("stays", []mikrotik.InterfaceRecord{iface("ether1", 1, 1, 1, 1)}))

	r.CleanupStaleRouters(map[string]struct{}{"stays": {}})

	r.mu.Lock()
	_, goneTracked := r.prevSystemInfo["gone"]
	_, staysTracked := r.prevSystemInfo["stays"]
	r.mu.Unlock()
	assert.False(t, goneTracked)
	assert.True(t, staysTracked)
}

func TestRenderProducesNonEmptyExpositionText(t *testing.T) {
	r := New()
	r.Update(makeSnapshot("router1", []mikrotik.InterfaceRecord{iface("ether1", 1, 1, 1, 1)}))

	contentType, body, err := r.Render("")
	assert := assert.New(t)
	assert.NoError(err)
	assert.NotEmpty(contentType)
	assert.Contains(string(body), "mikrotik_system_cpu_load")
}

func TestParseUptimeSeconds(t *testing.T) {
	cases := map[string]uint64{
		"1d2h3m4s": 93784,
		"1h5m":     3900,
		"30s":      30,
		"05:23:10": 19390,
		"23:10":    1390,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseUptimeSeconds(in), in)
	}
}
