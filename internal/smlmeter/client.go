package smlmeter

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/wkleiminger/pylon-agent/internal/logging"
	"github.com/wkleiminger/pylon-agent/internal/measurement"
	"github.com/wkleiminger/pylon-agent/internal/netutil"
)

// Client pulls one measurement at a time from a single smart meter over
// TCP, discovering the meter's address via BRE multicast announcement on
// first use if none was configured.
type Client struct {
	address        string
	discovered     string
	mu             sync.Mutex
	port           string
	dialTimeout    time.Duration
	readTimeout    time.Duration
	discoveryGroup string
	discoveryPort  int
	discoveryWait  time.Duration
}

// NewClient builds a Client. address may be empty, in which case Measure
// discovers the meter via BRE multicast announcement before dialing.
func NewClient(address, port string, discoveryGroup string, discoveryPort int, discoveryWait time.Duration) *Client {
	return &Client{
		address:        address,
		port:           port,
		dialTimeout:    5 * time.Second,
		readTimeout:    5 * time.Second,
		discoveryGroup: discoveryGroup,
		discoveryPort:  discoveryPort,
		discoveryWait:  discoveryWait,
	}
}

// Measure performs one discover-if-needed / dial / request / decode round
// trip and returns a filled Measurement. It is compatible with
// sampler.MeasureFunc.
func (c *Client) Measure(ctx context.Context) (measurement.Measurement, error) {
	addr := c.address
	if addr == "" {
		c.mu.Lock()
		addr = c.discovered
		c.mu.Unlock()
	}
	if addr == "" {
		ip, err := netutil.DiscoverMeter(ctx, c.discoveryGroup, c.discoveryPort, c.discoveryWait)
		if err != nil {
			return measurement.Measurement{}, fmt.Errorf("smlmeter: discover meter: %w", err)
		}
		addr = ip.String()
		if mac, ok, macErr := netutil.LookupARP(ip); macErr == nil && ok {
			logging.Debugf("discovered meter at %s (%s)", addr, mac)
		} else {
			logging.Debugf("discovered meter at %s", addr)
		}
		c.mu.Lock()
		c.discovered = addr
		c.mu.Unlock()
	}

	conn, err := netutil.DialMeter(ctx, addr, c.port, c.dialTimeout)
	if err != nil {
		return measurement.Measurement{}, fmt.Errorf("smlmeter: dial %s:%s: %w", addr, c.port, err)
	}
	defer conn.Close()

	m, err := c.exchange(ctx, conn)
	if err != nil {
		return measurement.Measurement{}, err
	}
	return m, nil
}

// exchange sends the request envelope and decodes the meter's reply into a
// Measurement.
func (c *Client) exchange(ctx context.Context, conn net.Conn) (measurement.Measurement, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.readTimeout))
	}

	request := frame(BuildRequest())
	if _, err := conn.Write(request); err != nil {
		return measurement.Measurement{}, fmt.Errorf("smlmeter: write request: %w", err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		return measurement.Measurement{}, fmt.Errorf("smlmeter: read reply: %w", err)
	}

	messages, err := unframe(reply)
	if err != nil {
		return measurement.Measurement{}, err
	}

	entries, err := ParseResponse(messages)
	if err != nil {
		return measurement.Measurement{}, err
	}

	m := measurement.New()
	m.Values[measurement.Timestamp] = float64(time.Now().Unix())

	for _, e := range entries {
		id, ok := measurement.LookupOBIS(e.OBIS)
		if !ok {
			continue
		}
		m.Values[id] = float64(e.Value) * math.Pow10(int(e.Scaler))
	}

	if filled := m.Filled(); filled < measurement.NumVariables-1 {
		logging.Warnf("only %d of %d variables measured", filled, measurement.NumVariables-1)
	}

	return m, nil
}

// readFrame reads a complete transport-framed datagram off conn: the
// start sequence, the message block, and the fixed-size trailer. It keeps
// reading until a complete trailer has arrived or the connection returns
// an error, so a reply split across several TCP segments is reassembled.
func readFrame(conn net.Conn) ([]byte, error) {
	r := bufio.NewReaderSize(conn, 4096)

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if trailerComplete(buf) {
				return buf, nil
			}
		}
		if err != nil {
			if len(buf) > 0 && trailerComplete(buf) {
				return buf, nil
			}
			return nil, err
		}
	}
}

// trailerComplete reports whether buf already contains a full transport
// trailer following its start sequence, so readFrame knows when to stop
// reading instead of blocking for a connection close that may never come.
func trailerComplete(buf []byte) bool {
	if len(buf) < 16 {
		return false
	}
	idx := lastIndexEscape(buf)
	return idx >= 8 && idx+8 <= len(buf)
}

func lastIndexEscape(buf []byte) int {
	for i := len(buf) - 4; i >= 8; i-- {
		if buf[i] == 0x1b && buf[i+1] == 0x1b && buf[i+2] == 0x1b && buf[i+3] == 0x1b {
			return i
		}
	}
	return -1
}
