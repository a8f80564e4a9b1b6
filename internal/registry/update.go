package registry

import (
	"time"

	"github.com/metricsmith/routeros_exporter/internal/mikrotik"
)

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// Update applies one router's collected snapshot: interface counters are
// turned into deltas against the previous snapshot (a counter reset on the
// device — e.g. a reboot — saturates to 0 rather than going negative or
// wrapping), the system-info family is reset-on-change, connection-
// tracking and VPN-peer series are refreshed with stale tuples reset to 0,
// and every observed dynamic tuple's last-seen timestamp is refreshed for
// the TTL watchdog.
func (r *Registry) Update(snapshot mikrotik.RouterSnapshot) {
	r.updateInterfaces(snapshot)
	r.updateSystem(snapshot)
	r.updateConntrack(snapshot)
	r.updateVPNPeers(snapshot)
}

func (r *Registry) updateInterfaces(snapshot mikrotik.RouterSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, iface := range snapshot.Interfaces {
		labels := interfaceLabels{router: snapshot.RouterName, iface: iface.Name}
		prev, ok := r.prevIface[labels]
		if !ok {
			prev = interfaceSnapshot{
				rxBytes: iface.RxBytes, txBytes: iface.TxBytes,
				rxPackets: iface.RxPackets, txPackets: iface.TxPackets,
				rxErrors: iface.RxErrors, txErrors: iface.TxErrors,
			}
		}

		l := []string{labels.router, labels.iface}
		r.interfaceRxBytes.WithLabelValues(l...).Add(float64(saturatingSub(iface.RxBytes, prev.rxBytes)))
		r.interfaceTxBytes.WithLabelValues(l...).Add(float64(saturatingSub(iface.TxBytes, prev.txBytes)))
		r.interfaceRxPackets.WithLabelValues(l...).Add(float64(saturatingSub(iface.RxPackets, prev.rxPackets)))
		r.interfaceTxPackets.WithLabelValues(l...).Add(float64(saturatingSub(iface.TxPackets, prev.txPackets)))
		r.interfaceRxErrors.WithLabelValues(l...).Add(float64(saturatingSub(iface.RxErrors, prev.rxErrors)))
		r.interfaceTxErrors.WithLabelValues(l...).Add(float64(saturatingSub(iface.TxErrors, prev.txErrors)))
		running := 0.0
		if iface.Running {
			running = 1
		}
		r.interfaceRunning.WithLabelValues(l...).Set(running)

		r.prevIface[labels] = interfaceSnapshot{
			rxBytes: iface.RxBytes, txBytes: iface.TxBytes,
			rxPackets: iface.RxPackets, txPackets: iface.TxPackets,
			rxErrors: iface.RxErrors, txErrors: iface.TxErrors,
		}
	}
}

func (r *Registry) updateSystem(snapshot mikrotik.RouterSnapshot) {
	router := snapshot.RouterName
	r.systemCPULoad.WithLabelValues(router).Set(float64(snapshot.System.CPULoad))
	r.systemFreeMemory.WithLabelValues(router).Set(float64(snapshot.System.FreeMemory))
	r.systemTotalMemory.WithLabelValues(router).Set(float64(snapshot.System.TotalMemory))
	r.systemUptimeSeconds.WithLabelValues(router).Set(float64(ParseUptimeSeconds(snapshot.System.Uptime)))

	info := systemInfoLabels{router: router, version: snapshot.System.Version, board: snapshot.System.BoardName}

	r.mu.Lock()
	old, had := r.prevSystemInfo[router]
	if had && old != info {
		r.systemInfo.WithLabelValues(old.router, old.version, old.board).Set(0)
	}
	r.prevSystemInfo[router] = info
	r.mu.Unlock()

	r.systemInfo.WithLabelValues(info.router, info.version, info.board).Set(1)
}

func (r *Registry) updateConntrack(snapshot mikrotik.RouterSnapshot) {
	now := time.Now()
	current := make(map[conntrackLabels]struct{}, len(snapshot.Conntrack))

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ct := range snapshot.Conntrack {
		labels := conntrackLabels{
			router: snapshot.RouterName, srcAddress: ct.SrcAddress,
			protocol: ct.Protocol, ipVersion: ct.IPVersion,
		}
		current[labels] = struct{}{}
		r.connectionTrackingCount.WithLabelValues(labels.router, labels.srcAddress, labels.protocol, labels.ipVersion).
			Set(float64(ct.ConnectionCount))
		r.conntrackLastSeen[labels] = now
	}

	prev := r.prevConntrack[snapshot.RouterName]
	for labels := range prev {
		if _, ok := current[labels]; !ok {
			r.connectionTrackingCount.WithLabelValues(labels.router, labels.srcAddress, labels.protocol, labels.ipVersion).Set(0)
		}
	}
	r.prevConntrack[snapshot.RouterName] = current
}

// shouldReplaceVPNPeer implements the deduplication tie-break: prefer a
// more recent handshake; if handshakes are equal (or both absent), prefer
// the larger rx+tx byte sum.
func shouldReplaceVPNPeer(existing, candidate mikrotik.VPNPeerRecord) bool {
	switch {
	case candidate.LatestHandshake != nil && existing.LatestHandshake != nil:
		if *candidate.LatestHandshake != *existing.LatestHandshake {
			return *candidate.LatestHandshake > *existing.LatestHandshake
		}
		return candidate.RxBytes+candidate.TxBytes > existing.RxBytes+existing.TxBytes
	case candidate.LatestHandshake != nil:
		return true
	case existing.LatestHandshake != nil:
		return false
	default:
		return candidate.RxBytes+candidate.TxBytes > existing.RxBytes+existing.TxBytes
	}
}

func (r *Registry) updateVPNPeers(snapshot mikrotik.RouterSnapshot) {
	now := time.Now()

	deduped := make(map[vpnPeerLabels]mikrotik.VPNPeerRecord, len(snapshot.VPNPeers))
	for _, peer := range snapshot.VPNPeers {
		labels := vpnPeerLabels{router: snapshot.RouterName, iface: peer.Interface, allowedAddress: peer.AllowedAddress}
		if existing, ok := deduped[labels]; ok {
			if shouldReplaceVPNPeer(existing, peer) {
				deduped[labels] = peer
			}
			continue
		}
		deduped[labels] = peer
	}

	currentPeers := make(map[vpnPeerLabels]struct{}, len(deduped))
	currentInfo := make(map[vpnPeerLabels]vpnPeerInfoLabels, len(deduped))

	r.mu.Lock()
	defer r.mu.Unlock()

	for labels, peer := range deduped {
		currentPeers[labels] = struct{}{}
		endpoint := peer.Endpoint
		if endpoint == "" {
			endpoint = "unknown"
		}
		info := vpnPeerInfoLabels{
			router: labels.router, iface: labels.iface, allowedAddress: labels.allowedAddress,
			name: peer.Name, endpoint: endpoint,
		}
		currentInfo[labels] = info

		r.vpnPeerRxBytes.WithLabelValues(labels.router, labels.iface, labels.allowedAddress).Set(float64(peer.RxBytes))
		r.vpnPeerTxBytes.WithLabelValues(labels.router, labels.iface, labels.allowedAddress).Set(float64(peer.TxBytes))
		if peer.LatestHandshake != nil {
			r.vpnPeerLatestHandshake.WithLabelValues(labels.router, labels.iface, labels.allowedAddress).Set(float64(*peer.LatestHandshake))
		} else {
			r.vpnPeerLatestHandshake.WithLabelValues(labels.router, labels.iface, labels.allowedAddress).Set(0)
		}
		r.vpnPeerInfo.WithLabelValues(info.router, info.iface, info.allowedAddress, info.name, info.endpoint).Set(1)

		r.vpnPeerLastSeen[labels] = now
		r.vpnPeerInfoLastSeen[info] = now
	}

	prevPeers := r.prevVPNPeers[snapshot.RouterName]
	for labels := range prevPeers {
		if _, ok := currentPeers[labels]; !ok {
			r.vpnPeerRxBytes.WithLabelValues(labels.router, labels.iface, labels.allowedAddress).Set(0)
			r.vpnPeerTxBytes.WithLabelValues(labels.router, labels.iface, labels.allowedAddress).Set(0)
			r.vpnPeerLatestHandshake.WithLabelValues(labels.router, labels.iface, labels.allowedAddress).Set(0)
		}
	}
	r.prevVPNPeers[snapshot.RouterName] = currentPeers

	prevInfo := r.prevVPNPeerInfo[snapshot.RouterName]
	for peerLabels, oldInfo := range prevInfo {
		if newInfo, ok := currentInfo[peerLabels]; !ok || newInfo != oldInfo {
			r.vpnPeerInfo.WithLabelValues(oldInfo.router, oldInfo.iface, oldInfo.allowedAddress, oldInfo.name, oldInfo.endpoint).Set(0)
		}
	}
	r.prevVPNPeerInfo[snapshot.RouterName] = currentInfo
}
