package mikrotik

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/metricsmith/routeros_exporter/internal/routeros"
)

func getUint(s routeros.Sentence, key string) uint64 {
	v, ok := s.Get(key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func getString(s routeros.Sentence, key, fallback string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return fallback
}

// parseSystem parses "/system/resource/print"'s single reply row. Only the
// first row carrying a "version" attribute is considered, matching the
// device's single-row reply shape.
func parseSystem(sentences []routeros.Sentence) SystemRecord {
	for _, s := range sentences {
		if _, ok := s.Get("version"); !ok {
			continue
		}
		return SystemRecord{
			Uptime:      getString(s, "uptime", "0s"),
			CPULoad:     getUint(s, "cpu-load"),
			FreeMemory:  getUint(s, "free-memory"),
			TotalMemory: getUint(s, "total-memory"),
			Version:     getString(s, "version", "unknown"),
			BoardName:   getString(s, "board-name", "unknown"),
		}
	}
	return SystemRecord{Uptime: "0s", Version: "unknown", BoardName: "unknown"}
}

// parseInterfaces parses "/interface/print".
func parseInterfaces(sentences []routeros.Sentence) []InterfaceRecord {
	out := make([]InterfaceRecord, 0, len(sentences))
	for _, s := range sentences {
		name, ok := s.Get("name")
		if !ok {
			continue
		}
		running, _ := s.Get("running")
		out = append(out, InterfaceRecord{
			Name:      name,
			RxBytes:   getUint(s, "rx-byte"),
			TxBytes:   getUint(s, "tx-byte"),
			RxPackets: getUint(s, "rx-packet"),
			TxPackets: getUint(s, "tx-packet"),
			RxErrors:  getUint(s, "rx-error"),
			TxErrors:  getUint(s, "tx-error"),
			Running:   running == "true",
		})
	}
	return out
}

// parseConntrack aggregates connection-tracking rows by (source address,
// protocol), counting occurrences. ipVersion is attached to every record
// since the device reports v4 and v6 separately under different commands.
func parseConntrack(sentences []routeros.Sentence, ipVersion string) []ConntrackRecord {
	type key struct{ src, proto string }
	counts := make(map[key]uint64)
	order := make([]key, 0)
	for _, s := range sentences {
		src, ok := s.Get("src-address")
		if !ok {
			continue
		}
		srcIP := extractSrcIP(src)
		proto := getString(s, "protocol", "unknown")
		k := key{srcIP, proto}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}
	out := make([]ConntrackRecord, 0, len(order))
	for _, k := range order {
		out = append(out, ConntrackRecord{
			SrcAddress:      k.src,
			Protocol:        k.proto,
			ConnectionCount: counts[k],
			IPVersion:       ipVersion,
		})
	}
	return out
}

// extractSrcIP strips the port from a RouterOS connection-tracking source
// address, handling IPv4 ("1.2.3.4:80"), bracketed IPv6 ("[::1]:80"), and
// bare addresses without a port.
func extractSrcIP(src string) string {
	if host, _, err := net.SplitHostPort(src); err == nil {
		return host
	}
	if strings.HasPrefix(src, "[") {
		if end := strings.IndexByte(src, ']'); end != -1 {
			return src[1:end]
		}
	}
	if idx := strings.LastIndexByte(src, ':'); idx != -1 {
		candidate := src[:idx]
		if net.ParseIP(candidate) != nil || strings.Contains(candidate, ".") {
			return candidate
		}
	}
	return src
}

// parseVPNInterfaces parses "/interface/wireguard/print".
func parseVPNInterfaces(sentences []routeros.Sentence) []VPNInterfaceRecord {
	out := make([]VPNInterfaceRecord, 0, len(sentences))
	for _, s := range sentences {
		name, ok := s.Get("name")
		if !ok {
			continue
		}
		disabled, _ := s.Get("disabled")
		out = append(out, VPNInterfaceRecord{Name: name, Enabled: disabled != "true"})
	}
	return out
}

// parseVPNPeers parses "/interface/wireguard/peers/print". A peer without
// an allowed-address attribute is dropped: it is the stable identifier this
// exporter uses instead of the peer's public key (spec §9, avoids exposing
// key material in labels).
func parseVPNPeers(sentences []routeros.Sentence, now time.Time) []VPNPeerRecord {
	out := make([]VPNPeerRecord, 0, len(sentences))
	for _, s := range sentences {
		iface, ok := s.Get("interface")
		if !ok {
			continue
		}
		allowedAddress, ok := s.Get("allowed-address")
		if !ok {
			continue
		}
		endpoint, _ := s.Get("endpoint")
		handshake := parseHandshakeField(s, now)
		out = append(out, VPNPeerRecord{
			Interface:       iface,
			Name:            getString(s, "name", "unnamed-peer"),
			AllowedAddress:  allowedAddress,
			Endpoint:        endpoint,
			RxBytes:         getUint(s, "rx"),
			TxBytes:         getUint(s, "tx"),
			LatestHandshake: handshake,
		})
	}
	return out
}

// parseHandshakeField reads the peer handshake-age attribute, trying
// "last-handshake" before the older "latest-handshake" name, and converts
// it to a Unix timestamp by subtracting the parsed duration from now.
func parseHandshakeField(s routeros.Sentence, now time.Time) *int64 {
	raw, ok := s.Get("last-handshake")
	if !ok {
		raw, ok = s.Get("latest-handshake")
	}
	if !ok || raw == "" || raw == "never" {
		return nil
	}
	var ageSeconds uint64
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		ageSeconds = n
	} else {
		ageSeconds = parseRouterOSDuration(raw)
	}
	ts := now.Unix() - int64(ageSeconds)
	if ts < 0 {
		ts = 0
	}
	return &ts
}

// parseRouterOSDuration parses a RouterOS duration string such as
// "1w4d9h15m7s" into total seconds. Unrecognized characters are ignored;
// unparseable numeric runs saturate rather than overflow.
func parseRouterOSDuration(s string) uint64 {
	var total, current uint64
	for _, ch := range s {
		switch {
		case ch >= '0' && ch <= '9':
			digit := uint64(ch - '0')
			next := current*10 + digit
			if next < current {
				return ^uint64(0)
			}
			current = next
		case ch == 's':
			total = saturatingAdd(total, current)
			current = 0
		case ch == 'm':
			total = saturatingAdd(total, saturatingMul(current, 60))
			current = 0
		case ch == 'h':
			total = saturatingAdd(total, saturatingMul(current, 3600))
			current = 0
		case ch == 'd':
			total = saturatingAdd(total, saturatingMul(current, 86400))
			current = 0
		case ch == 'w':
			total = saturatingAdd(total, saturatingMul(current, 604800))
			current = 0
		default:
			// ignore
		}
	}
	return total
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	product := a * b
	if product/a != b {
		return ^uint64(0)
	}
	return product
}
