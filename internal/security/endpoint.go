package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned when an outbound request targets an
// internal address.
var ErrBlockedAddress = errors.New("security: blocked address")

// blockedHosts are internal names rejected before any lookup.
var blockedHosts = []string{"localhost", "metadata.google.internal", "metadata.google"}

// CheckHost rejects internal hostnames and non-public IP literals. It does
// no DNS lookup; SafeTransport checks resolved addresses at dial time.
func CheckHost(host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, b := range blockedHosts {
		if host == b || strings.HasSuffix(host, "."+b) {
			return fmt.Errorf("%w: host %q", ErrBlockedAddress, host)
		}
	}
	if ip, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return checkIP(ip)
	}
	return nil
}

func checkIP(ip netip.Addr) error {
	ip = ip.Unmap()
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: loopback address %s", ErrBlockedAddress, ip)
	case ip.IsPrivate():
		return fmt.Errorf("%w: private address %s", ErrBlockedAddress, ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: link-local address %s", ErrBlockedAddress, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: unspecified address %s", ErrBlockedAddress, ip)
	}
	return nil
}

// dialControl runs after DNS resolution, so rebinding to an internal
// address is caught too.
func dialControl(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: unparseable address %q", ErrBlockedAddress, address)
	}
	return checkIP(ap.Addr())
}

// SafeTransport is an HTTP transport for fetching untrusted URLs, such as
// agent metadata hosts. Connections to internal addresses fail.
func SafeTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if err := CheckHost(host); err != nil {
			return nil, err
		}
		return dialer.DialContext(ctx, network, addr)
	}
	return t
}

// SafeClient wraps SafeTransport with the given overall timeout.
func SafeClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SafeTransport(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			return CheckHost(req.URL.Hostname())
		},
	}
}
