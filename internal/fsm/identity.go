package fsm

import (
	"fmt"
	"net"
	"os"
)

// defaultFallbackHost is reported to the coordinator when local
// address discovery fails; the coordinator is expected to still be
// able to reach a worker on the same host in that case.
const defaultFallbackHost = "127.0.0.1"

// defaultNodeID derives a process-chosen node identity from the
// machine's hostname, falling back to a fixed name if the hostname
// cannot be read.
func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "c-unknown"
	}
	return fmt.Sprintf("c-%s", host)
}

// discoverLocalAddress finds the local IP the kernel would use to
// reach serverHost:serverPort, by opening (but never sending on) a UDP
// socket toward it. Falls back to 127.0.0.1 if the dial itself fails,
// e.g. because the coordinator's address can't be resolved yet.
func discoverLocalAddress(serverHost string, serverPort int) string {
	conn, err := net.Dial("udp", net.JoinHostPort(serverHost, fmt.Sprint(serverPort)))
	if err != nil {
		return defaultFallbackHost
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return defaultFallbackHost
	}
	return addr.IP.String()
}
