package netutil

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
)

// LookupARP scans the kernel's ARP cache for the hardware address
// associated with ip. It is used only as an auxiliary diagnostic (logging
// which MAC address a discovered meter resolves to) and is never
// load-bearing for delivery: a lookup miss is reported through ok, not an
// error, since an absent or stale ARP entry is routine on a quiet segment.
func LookupARP(ip net.IP) (mac net.HardwareAddr, ok bool, err error) {
	f, err := os.Open("/proc/net/arp")
	if err != nil {
		return nil, false, fmt.Errorf("netutil: open arp cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line: "IP address ... HW address ... Device"

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		if fields[0] != ip.String() {
			continue
		}
		hw, err := net.ParseMAC(fields[3])
		if err != nil {
			return nil, true, fmt.Errorf("netutil: malformed arp entry for %s: %w", ip, err)
		}
		return hw, true, nil
	}

	return nil, false, nil
}
