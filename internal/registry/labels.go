package registry

// interfaceLabels identifies one router's interface.
type interfaceLabels struct {
	router string
	iface  string
}

// routerLabels identifies a single router-scoped gauge/counter.
type routerLabels struct {
	router string
}

// systemInfoLabels carries the info family's static attributes; the value
// is always 1, and a change in version/board triggers a reset of the old
// tuple to 0 (see updateSystem).
type systemInfoLabels struct {
	router  string
	version string
	board   string
}

// conntrackLabels identifies one (router, source address, protocol, IP
// version) connection-tracking tuple.
type conntrackLabels struct {
	router     string
	srcAddress string
	protocol   string
	ipVersion  string
}

// vpnPeerLabels identifies one VPN peer by its stable allowed-address
// identifier rather than its public key (avoids key material in labels).
type vpnPeerLabels struct {
	router         string
	iface          string
	allowedAddress string
}

// vpnPeerInfoLabels carries the VPN peer info family's static attributes.
type vpnPeerInfoLabels struct {
	router         string
	iface          string
	allowedAddress string
	name           string
	endpoint       string
}
