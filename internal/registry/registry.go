package registry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// interfaceSnapshot is the previous cycle's counter values for one
// interface, used to compute this cycle's delta.
type interfaceSnapshot struct {
	rxBytes, txBytes     uint64
	rxPackets, txPackets uint64
	rxErrors, txErrors   uint64
}

// Registry owns every metric family this exporter exposes, plus the
// previous-snapshot and last-seen bookkeeping needed to turn cumulative
// device counters into Prometheus deltas and to expire dynamic labels.
//
// All families are real client_golang CounterVec/GaugeVec instances
// registered once at construction against a private *prometheus.Registry;
// client_golang's own locking makes concurrent .Add/.Set/.Delete* calls and
// Gather() snapshots safe without an additional registry-wide mutex.
type Registry struct {
	reg *prometheus.Registry

	interfaceRxBytes   *prometheus.CounterVec
	interfaceTxBytes   *prometheus.CounterVec
	interfaceRxPackets *prometheus.CounterVec
	interfaceTxPackets *prometheus.CounterVec
	interfaceRxErrors  *prometheus.CounterVec
	interfaceTxErrors  *prometheus.CounterVec
	interfaceRunning   *prometheus.GaugeVec

	systemCPULoad       *prometheus.GaugeVec
	systemFreeMemory    *prometheus.GaugeVec
	systemTotalMemory   *prometheus.GaugeVec
	systemUptimeSeconds *prometheus.GaugeVec
	systemInfo          *prometheus.GaugeVec

	scrapeSuccess                    *prometheus.CounterVec
	scrapeErrors                     *prometheus.CounterVec
	scrapeDurationMilliseconds       *prometheus.GaugeVec
	scrapeLastSuccessTimestampSecond *prometheus.GaugeVec
	connectionConsecutiveErrors      *prometheus.GaugeVec

	collectionCycleDurationMilliseconds prometheus.Gauge
	connectionPoolSize                  prometheus.Gauge
	connectionPoolActive                prometheus.Gauge

	connectionTrackingCount *prometheus.GaugeVec

	vpnPeerRxBytes         *prometheus.GaugeVec
	vpnPeerTxBytes         *prometheus.GaugeVec
	vpnPeerLatestHandshake *prometheus.GaugeVec
	vpnPeerInfo            *prometheus.GaugeVec

	mu                 sync.Mutex
	prevIface          map[interfaceLabels]interfaceSnapshot
	prevSystemInfo     map[string]systemInfoLabels
	prevConntrack      map[string]map[conntrackLabels]struct{}
	prevVPNPeers       map[string]map[vpnPeerLabels]struct{}
	prevVPNPeerInfo    map[string]map[vpnPeerLabels]vpnPeerInfoLabels
	conntrackLastSeen  map[conntrackLabels]time.Time
	vpnPeerLastSeen    map[vpnPeerLabels]time.Time
	vpnPeerInfoLastSeen map[vpnPeerInfoLabels]time.Time
}

const namespace = "mikrotik"

func vec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// New constructs a Registry with every family registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		interfaceRxBytes:   counterVec("interface_rx_bytes", "Received bytes on interface", "router", "interface"),
		interfaceTxBytes:   counterVec("interface_tx_bytes", "Transmitted bytes on interface", "router", "interface"),
		interfaceRxPackets: counterVec("interface_rx_packets", "Received packets on interface", "router", "interface"),
		interfaceTxPackets: counterVec("interface_tx_packets", "Transmitted packets on interface", "router", "interface"),
		interfaceRxErrors:  counterVec("interface_rx_errors", "Receive errors on interface", "router", "interface"),
		interfaceTxErrors:  counterVec("interface_tx_errors", "Transmit errors on interface", "router", "interface"),
		interfaceRunning:   vec("interface_running", "Interface running status (1=running,0=down)", "router", "interface"),

		systemCPULoad:       vec("system_cpu_load", "CPU load percentage", "router"),
		systemFreeMemory:    vec("system_free_memory_bytes", "Free memory bytes", "router"),
		systemTotalMemory:   vec("system_total_memory_bytes", "Total memory bytes", "router"),
		systemUptimeSeconds: vec("system_uptime_seconds", "System uptime in seconds", "router"),
		systemInfo:          vec("system_info", "Static system info (value=1)", "router", "version", "board"),

		scrapeSuccess:                    counterVec("scrape_success", "Successful scrape cycles per router", "router"),
		scrapeErrors:                     counterVec("scrape_errors", "Failed scrape cycles per router", "router"),
		scrapeDurationMilliseconds:       vec("scrape_duration_milliseconds", "Duration of last scrape in milliseconds", "router"),
		scrapeLastSuccessTimestampSecond: vec("scrape_last_success_timestamp_seconds", "Unix timestamp of last successful scrape", "router"),
		connectionConsecutiveErrors:      vec("connection_consecutive_errors", "Number of consecutive connection errors", "router"),

		collectionCycleDurationMilliseconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "collection_cycle_duration_milliseconds",
			Help: "Duration of full collection cycle in milliseconds",
		}),
		connectionPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connection_pool_size", Help: "Total number of connections in pool",
		}),
		connectionPoolActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connection_pool_active", Help: "Number of active connections in pool",
		}),

		connectionTrackingCount: vec("connection_tracking_count", "Number of tracked connections per source address and protocol",
			"router", "src_address", "protocol", "ip_version"),

		vpnPeerRxBytes:         vec("wireguard_peer_rx_bytes", "Bytes received from WireGuard peer", "router", "interface", "allowed_address"),
		vpnPeerTxBytes:         vec("wireguard_peer_tx_bytes", "Bytes transmitted to WireGuard peer", "router", "interface", "allowed_address"),
		vpnPeerLatestHandshake: vec("wireguard_peer_latest_handshake", "Unix timestamp of last handshake with WireGuard peer", "router", "interface", "allowed_address"),
		vpnPeerInfo: vec("wireguard_peer_info", "Static WireGuard peer info (value=1)",
			"router", "interface", "allowed_address", "name", "endpoint"),

		prevIface:           make(map[interfaceLabels]interfaceSnapshot),
		prevSystemInfo:      make(map[string]systemInfoLabels),
		prevConntrack:       make(map[string]map[conntrackLabels]struct{}),
		prevVPNPeers:        make(map[string]map[vpnPeerLabels]struct{}),
		prevVPNPeerInfo:     make(map[string]map[vpnPeerLabels]vpnPeerInfoLabels),
		conntrackLastSeen:   make(map[conntrackLabels]time.Time),
		vpnPeerLastSeen:     make(map[vpnPeerLabels]time.Time),
		vpnPeerInfoLastSeen: make(map[vpnPeerInfoLabels]time.Time),
	}

	r.reg.MustRegister(
		r.interfaceRxBytes, r.interfaceTxBytes, r.interfaceRxPackets, r.interfaceTxPackets,
		r.interfaceRxErrors, r.interfaceTxErrors, r.interfaceRunning,
		r.systemCPULoad, r.systemFreeMemory, r.systemTotalMemory, r.systemUptimeSeconds, r.systemInfo,
		r.scrapeSuccess, r.scrapeErrors, r.scrapeDurationMilliseconds, r.scrapeLastSuccessTimestampSecond,
		r.connectionConsecutiveErrors, r.collectionCycleDurationMilliseconds,
		r.connectionPoolSize, r.connectionPoolActive, r.connectionTrackingCount,
		r.vpnPeerRxBytes, r.vpnPeerTxBytes, r.vpnPeerLatestHandshake, r.vpnPeerInfo,
	)

	return r
}
