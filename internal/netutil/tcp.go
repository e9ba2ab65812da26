package netutil

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialMeter opens a per-sample TCP connection to a meter. The original
// implementation resolved addresses through getaddrinfo and tried each
// candidate in turn; net.Dialer.DialContext does exactly that internally
// for a "tcp" network, trying every resolved address before giving up, so
// there is nothing left for this helper to do but apply the timeout and
// wrap errors with package context.
func DialMeter(ctx context.Context, host, port string, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("netutil: dial %s:%s: %w", host, port, err)
	}
	return conn, nil
}

// IsLocalAddress reports whether ip is assigned to one of this host's
// network interfaces.
func IsLocalAddress(ip net.IP) bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.Equal(ip) {
			return true
		}
	}
	return false
}

// InterfaceForAddress returns the name of the network interface carrying
// ip, for diagnostic logging when a meter is discovered on a particular
// segment.
func InterfaceForAddress(ip net.IP) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("netutil: list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ipNet.Contains(ip) {
				return iface.Name, nil
			}
		}
	}

	return "", fmt.Errorf("netutil: no interface found for %s", ip)
}
