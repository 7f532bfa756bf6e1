package detector

import (
	"net"
	"strconv"
	"time"
)

const defaultDialTimeout = 250 * time.Millisecond

// PortDetector reports a service alive when its TCP port accepts a
// connection. Dev servers bind their port once warm, so this doubles as a
// readiness probe after the warm-up window.
type PortDetector struct {
	Host    string        // defaults to 127.0.0.1
	Port    int           // required
	Timeout time.Duration // defaults to 250ms
}

func (d PortDetector) Alive() (bool, error) {
	host := d.Host
	if host == "" {
		host = "127.0.0.1"
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(d.Port)), timeout)
	if err != nil {
		// Connection refused or timed out: nothing is listening.
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

func (d PortDetector) Describe() string {
	host := d.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return "port:" + net.JoinHostPort(host, strconv.Itoa(d.Port))
}
