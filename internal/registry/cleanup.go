package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CleanupStaleInterfaces drops interface snapshots (and their label series)
// for interfaces no longer present in currentInterfaces, preventing
// unbounded growth as interfaces are added/removed from a router over time.
func (r *Registry) CleanupStaleInterfaces(currentInterfaces map[string][]string) {
	current := make(map[interfaceLabels]struct{})
	for router, names := range currentInterfaces {
		for _, name := range names {
			current[interfaceLabels{router: router, iface: name}] = struct{}{}
		}
	}

	r.mu.Lock()
	var stale []interfaceLabels
	for labels := range r.prevIface {
		if _, ok := current[labels]; !ok {
			stale = append(stale, labels)
		}
	}
	for _, labels := range stale {
		delete(r.prevIface, labels)
	}
	r.mu.Unlock()

	for _, labels := range stale {
		r.interfaceRxBytes.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceTxBytes.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceRxPackets.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceTxPackets.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceRxErrors.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceTxErrors.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceRunning.DeleteLabelValues(labels.router, labels.iface)
	}
}

// CleanupExpiredDynamicLabels deletes conntrack and VPN-peer series whose
// last-seen age exceeds ttl, regardless of whether the owning router is
// still active — the TTL watchdog that backstops the per-cycle reset-to-
// zero behavior in Update.
func (r *Registry) CleanupExpiredDynamicLabels(ttl time.Duration) {
	now := time.Now()

	r.mu.Lock()
	var staleConntrack []conntrackLabels
	for labels, seen := range r.conntrackLastSeen {
		if now.Sub(seen) > ttl {
			staleConntrack = append(staleConntrack, labels)
		}
	}
	for _, labels := range staleConntrack {
		delete(r.conntrackLastSeen, labels)
		if set, ok := r.prevConntrack[labels.router]; ok {
			delete(set, labels)
			if len(set) == 0 {
				delete(r.prevConntrack, labels.router)
			}
		}
	}

	var stalePeers []vpnPeerLabels
	for labels, seen := range r.vpnPeerLastSeen {
		if now.Sub(seen) > ttl {
			stalePeers = append(stalePeers, labels)
		}
	}
	for _, labels := range stalePeers {
		delete(r.vpnPeerLastSeen, labels)
		if set, ok := r.prevVPNPeers[labels.router]; ok {
			delete(set, labels)
			if len(set) == 0 {
				delete(r.prevVPNPeers, labels.router)
			}
		}
	}

	var stalePeerInfo []vpnPeerInfoLabels
	for labels, seen := range r.vpnPeerInfoLastSeen {
		if now.Sub(seen) > ttl {
			stalePeerInfo = append(stalePeerInfo, labels)
		}
	}
	for _, labels := range stalePeerInfo {
		delete(r.vpnPeerInfoLastSeen, labels)
		if m, ok := r.prevVPNPeerInfo[labels.router]; ok {
			for peerLabels, info := range m {
				if info == labels {
					delete(m, peerLabels)
				}
			}
			if len(m) == 0 {
				delete(r.prevVPNPeerInfo, labels.router)
			}
		}
	}
	r.mu.Unlock()

	for _, labels := range staleConntrack {
		r.connectionTrackingCount.DeleteLabelValues(labels.router, labels.srcAddress, labels.protocol, labels.ipVersion)
	}
	for _, labels := range stalePeers {
		r.vpnPeerRxBytes.DeleteLabelValues(labels.router, labels.iface, labels.allowedAddress)
		r.vpnPeerTxBytes.DeleteLabelValues(labels.router, labels.iface, labels.allowedAddress)
		r.vpnPeerLatestHandshake.DeleteLabelValues(labels.router, labels.iface, labels.allowedAddress)
	}
	for _, labels := range stalePeerInfo {
		r.vpnPeerInfo.DeleteLabelValues(labels.router, labels.iface, labels.allowedAddress, labels.name, labels.endpoint)
	}
}

// CleanupStaleRouters purges every series and bookkeeping entry for
// routers no longer present in activeRouters, invoked after a target is
// removed from configuration.
func (r *Registry) CleanupStaleRouters(activeRouters map[string]struct{}) {
	r.mu.Lock()

	staleRouters := make(map[string]struct{})

	var staleIface []interfaceLabels
	for labels := range r.prevIface {
		if _, ok := activeRouters[labels.router]; !ok {
			staleRouters[labels.router] = struct{}{}
			staleIface = append(staleIface, labels)
		}
	}
	for _, labels := range staleIface {
		delete(r.prevIface, labels)
	}

	var staleSystem []systemInfoLabels
	for router, info := range r.prevSystemInfo {
		if _, ok := activeRouters[router]; !ok {
			staleRouters[router] = struct{}{}
			staleSystem = append(staleSystem, info)
			delete(r.prevSystemInfo, router)
		}
	}

	var staleConntrack []conntrackLabels
	for router, set := range r.prevConntrack {
		if _, ok := activeRouters[router]; !ok {
			staleRouters[router] = struct{}{}
			for labels := range set {
				staleConntrack = append(staleConntrack, labels)
			}
			delete(r.prevConntrack, router)
		}
	}

	var stalePeers []vpnPeerLabels
	for router, set := range r.prevVPNPeers {
		if _, ok := activeRouters[router]; !ok {
			staleRouters[router] = struct{}{}
			for labels := range set {
				stalePeers = append(stalePeers, labels)
			}
			delete(r.prevVPNPeers, router)
		}
	}

	var stalePeerInfo []vpnPeerInfoLabels
	for router, m := range r.prevVPNPeerInfo {
		if _, ok := activeRouters[router]; !ok {
			staleRouters[router] = struct{}{}
			for _, info := range m {
				stalePeerInfo = append(stalePeerInfo, info)
			}
			delete(r.prevVPNPeerInfo, router)
		}
	}

	for labels := range r.conntrackLastSeen {
		if _, ok := activeRouters[labels.router]; !ok {
			delete(r.conntrackLastSeen, labels)
		}
	}
	for labels := range r.vpnPeerLastSeen {
		if _, ok := activeRouters[labels.router]; !ok {
			delete(r.vpnPeerLastSeen, labels)
		}
	}
	for labels := range r.vpnPeerInfoLastSeen {
		if _, ok := activeRouters[labels.router]; !ok {
			delete(r.vpnPeerInfoLastSeen, labels)
		}
	}
	r.mu.Unlock()

	for _, labels := range staleIface {
		r.interfaceRxBytes.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceTxBytes.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceRxPackets.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceTxPackets.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceRxErrors.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceTxErrors.DeleteLabelValues(labels.router, labels.iface)
		r.interfaceRunning.DeleteLabelValues(labels.router, labels.iface)
	}
	for _, info := range staleSystem {
		r.systemInfo.DeleteLabelValues(info.router, info.version, info.board)
	}
	for _, labels := range staleConntrack {
		r.connectionTrackingCount.DeleteLabelValues(labels.router, labels.srcAddress, labels.protocol, labels.ipVersion)
	}
	for _, labels := range stalePeers {
		r.vpnPeerRxBytes.DeleteLabelValues(labels.router, labels.iface, labels.allowedAddress)
		r.vpnPeerTxBytes.DeleteLabelValues(labels.router, labels.iface, labels.allowedAddress)
		r.vpnPeerLatestHandshake.DeleteLabelValues(labels.router, labels.iface, labels.allowedAddress)
	}
	for _, info := range stalePeerInfo {
		r.vpnPeerInfo.DeleteLabelValues(info.router, info.iface, info.allowedAddress, info.name, info.endpoint)
	}
	for router := range staleRouters {
		match := prometheus.Labels{"router": router}
		r.systemCPULoad.DeletePartialMatch(match)
		r.systemFreeMemory.DeletePartialMatch(match)
		r.systemTotalMemory.DeletePartialMatch(match)
		r.systemUptimeSeconds.DeletePartialMatch(match)
		r.scrapeSuccess.DeletePartialMatch(match)
		r.scrapeErrors.DeletePartialMatch(match)
		r.scrapeDurationMilliseconds.DeletePartialMatch(match)
		r.scrapeLastSuccessTimestampSecond.DeletePartialMatch(match)
		r.connectionConsecutiveErrors.DeletePartialMatch(match)
	}
}
