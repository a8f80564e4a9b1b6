// Package mikrotik parses RouterOS command replies into typed records and
// issues the fixed command set this exporter understands.
package mikrotik

// InterfaceRecord is one row of "/interface/print".
type InterfaceRecord struct {
	Name      string
	RxBytes   uint64
	TxBytes   uint64
	RxPackets uint64
	TxPackets uint64
	RxErrors  uint64
	TxErrors  uint64
	Running   bool
}

// SystemRecord is the single row of "/system/resource/print".
type SystemRecord struct {
	Uptime      string
	CPULoad     uint64
	FreeMemory  uint64
	TotalMemory uint64
	Version     string
	BoardName   string
}

// ConntrackRecord aggregates tracked connections by source address and
// protocol for one IP version.
type ConntrackRecord struct {
	SrcAddress       string
	Protocol         string
	ConnectionCount  uint64
	IPVersion        string
}

// VPNInterfaceRecord is one row of "/interface/wireguard/print".
type VPNInterfaceRecord struct {
	Name    string
	Enabled bool
}

// VPNPeerRecord is one row of "/interface/wireguard/peers/print". Endpoint
// and LatestHandshake are optional: Endpoint is empty and LatestHandshake
// is nil when RouterOS omits them (peer never connected).
type VPNPeerRecord struct {
	Interface       string
	Name            string
	AllowedAddress  string
	Endpoint        string
	RxBytes         uint64
	TxBytes         uint64
	LatestHandshake *int64
}

// RouterSnapshot is one scrape cycle's full collected state for one router.
type RouterSnapshot struct {
	RouterName         string
	Interfaces         []InterfaceRecord
	System             SystemRecord
	Conntrack          []ConntrackRecord
	VPNInterfaces      []VPNInterfaceRecord
	VPNPeers           []VPNPeerRecord
}
