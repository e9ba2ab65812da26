// Package netutil provides the networking primitives the SML meter client
// needs: multicast discovery of a meter announcing itself on the local
// segment, a dial helper for the meter's per-sample TCP connection, and an
// ARP cache lookup used only as an auxiliary diagnostic. None of these
// route through a shared socket table or manual select() loop the way the
// original implementation did — Go's net package already gives every
// socket its own blocking goroutine, so there is nothing left to multiplex.
package netutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// DiscoverMeter listens on the given multicast group/port for a meter's
// self-announcement datagram and returns the sender's address. Smart
// meters following this announcement convention send a near-empty
// datagram from their own address; the payload is never inspected.
//
// DiscoverMeter blocks until either a datagram arrives or timeout elapses,
// matching the original single-shot discovery call rather than a
// subscription; callers that want retries loop around it themselves.
func DiscoverMeter(ctx context.Context, group string, port int, timeout time.Duration) (net.IP, error) {
	groupIP := net.ParseIP(group)
	if groupIP == nil {
		return nil, fmt.Errorf("netutil: invalid multicast group %q", group)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("netutil: listen for discovery: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(nil, &net.UDPAddr{IP: groupIP}); err != nil {
		return nil, fmt.Errorf("netutil: join multicast group %s: %w", group, err)
	}
	defer pc.LeaveGroup(nil, &net.UDPAddr{IP: groupIP})

	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()
	defer close(done)

	buf := make([]byte, 1500)
	_, _, src, err := pc.ReadFrom(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("netutil: discovery read: %w", err)
	}

	udpSrc, ok := src.(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("netutil: unexpected source address type %T", src)
	}

	return udpSrc.IP, nil
}
