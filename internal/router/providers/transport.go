package providers

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// sharedResolver is reused across every provider client so a single
// background refresh keeps DNS answers warm for all of them, rather than
// each client paying its own resolution latency on every dial.
var sharedResolver = &dnscache.Resolver{}

func init() {
	go refreshResolverPeriodically(sharedResolver, 5*time.Minute)
}

func refreshResolverPeriodically(resolver *dnscache.Resolver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		resolver.Refresh(true)
	}
}

// cachedDialTransport returns an http.RoundTripper that resolves hostnames
// through sharedResolver before dialing, so a remote model endpoint's DNS
// hiccup doesn't stall a dispatch that's already budgeted against a
// request timeout.
func cachedDialTransport() http.RoundTripper {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := sharedResolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		dialer := &net.Dialer{}
		var lastErr error
		for _, ip := range ips {
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
		}
		return nil, lastErr
	}
	return base
}
