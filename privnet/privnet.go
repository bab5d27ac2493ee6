// Package privnet detects hosts that resolve to non-public addresses.
package privnet

import (
	"context"
	"net"
	"time"

	"golang.org/x/xerrors"
)

var defaultPrivateCIDRs = []string{
	// Loopback
	"127.0.0.0/8",
	"::1/128",
	// Private (RFC1918)
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	// Carrier-grade NAT
	"100.64.0.0/10",
	// Link-local
	"169.254.0.0/16",
	"fe80::/10",
	// Unique local (RFC4193)
	"fc00::/7",
	// Unspecified
	"0.0.0.0/8",
	"::/128",
}

// Detector checks whether a host name or address belongs to a private
// network.
type Detector struct {
	ranges   []*net.IPNet
	resolver *net.Resolver
	timeout  time.Duration
}

// NewDetector returns a Detector for the loopback, link-local, private and
// unspecified address ranges.
func NewDetector() (*Detector, error) {
	return NewDetectorFromCIDRs(defaultPrivateCIDRs...)
}

// NewDetectorFromCIDRs returns a Detector that treats the given CIDR blocks
// as private.
func NewDetectorFromCIDRs(cidrs ...string) (*Detector, error) {
	ranges := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, xerrors.Errorf("privnet: %w", err)
		}
		ranges = append(ranges, block)
	}

	return &Detector{
		ranges:   ranges,
		resolver: net.DefaultResolver,
		timeout:  5 * time.Second,
	}, nil
}

// IsPrivate returns true if host is an address in one of the detector's
// ranges, or a name that resolves to at least one such address. Name
// resolution stops when ctx ends or the detector's own timeout expires.
func (d *Detector) IsPrivate(ctx context.Context, host string) (bool, error) {
	if ip := net.ParseIP(host); ip != nil {
		return d.contains(ip), nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	addrs, err := d.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return false, xerrors.Errorf("privnet: resolve %q: %w", host, err)
	}

	for _, addr := range addrs {
		if d.contains(addr.IP) {
			return true, nil
		}
	}
	return false, nil
}

func (d *Detector) contains(ip net.IP) bool {
	for _, block := range d.ranges {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
