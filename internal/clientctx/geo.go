package clientctx

import (
	"context"
	"net/netip"
	"strings"
	"time"
)

// DefaultGeoTimeout bounds a provider lookup when no timeout is configured.
const DefaultGeoTimeout = 500 * time.Millisecond

// Confidence levels reported on GeoLocation.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// GeoLocation is derived, display-only location metadata. It is never used for access decisions.
type GeoLocation struct {
	Country    string `json:"country"`
	Region     string `json:"region,omitempty"`
	City       string `json:"city,omitempty"`
	Confidence string `json:"confidence"`
	// Local is true for the placeholder returned for private and reserved ranges.
	Local bool `json:"local"`
}

// LocalPlaceholder is returned for private/reserved addresses instead of performing a lookup.
func LocalPlaceholder() *GeoLocation {
	return &GeoLocation{Country: "Local", City: "Local Network", Confidence: ConfidenceLow, Local: true}
}

// GeoProvider resolves a publicly routable address. Implementations should honor ctx.
type GeoProvider interface {
	Lookup(ctx context.Context, ip netip.Addr) (*GeoLocation, error)
}

// GeoLocator applies the classification rules around an optional provider.
// The zero value (and a nil *GeoLocator) is usable and never performs a lookup.
type GeoLocator struct {
	provider GeoProvider
	timeout  time.Duration
}

// NewGeoLocator returns a locator backed by provider. provider may be nil, in which case public
// addresses resolve to nil. timeout <= 0 uses DefaultGeoTimeout.
func NewGeoLocator(provider GeoProvider, timeout time.Duration) *GeoLocator {
	if timeout <= 0 {
		timeout = DefaultGeoTimeout
	}
	return &GeoLocator{provider: provider, timeout: timeout}
}

// Lookup returns the location for ip, or nil when it is absent:
//   - malformed input returns nil;
//   - private, loopback, link-local and other reserved ranges return LocalPlaceholder();
//   - public addresses return the provider's answer, or nil with no provider, on provider
//     error, or when the provider does not answer within the timeout.
func (g *GeoLocator) Lookup(ctx context.Context, ip string) *GeoLocation {
	addr, ok := ParseIP(ip)
	if !ok {
		return nil
	}
	if IsReserved(addr) {
		return LocalPlaceholder()
	}
	if g == nil || g.provider == nil {
		return nil
	}
	timeout := g.timeout
	if timeout <= 0 {
		timeout = DefaultGeoTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		loc *GeoLocation
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{}
			}
		}()
		loc, err := g.provider.Lookup(lookupCtx, addr)
		ch <- result{loc: loc, err: err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil
		}
		return r.loc
	case <-lookupCtx.Done():
		return nil
	}
}

// GeolocationFromIP classifies ip without a lookup provider: nil for malformed and public
// addresses, the local placeholder for private and reserved ones.
func GeolocationFromIP(ctx context.Context, ip string) *GeoLocation {
	var g *GeoLocator
	return g.Lookup(ctx, ip)
}

// ParseIP parses an IPv4 or IPv6 address, tolerating surrounding whitespace, an IPv6 zone,
// and a port (host:port or [v6]:port). It reports false for anything else.
func ParseIP(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().WithZone(""), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().WithZone(""), true
	}
	return netip.Addr{}, false
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"), // TEST-NET-1
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2
	netip.MustParsePrefix("203.0.113.0/24"),  // TEST-NET-3
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("64:ff9b:1::/48"),
}

// IsReserved reports whether addr is private, loopback, link-local, multicast, unspecified, or in
// a documentation/benchmark/reserved block.
func IsReserved(addr netip.Addr) bool {
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
