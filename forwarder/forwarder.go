// Package forwarder relays a query the handler could not answer
// authoritatively to an upstream resolver and returns its reply unmodified;
// the caller rewrites the header for the client.
package forwarder

import (
	"context"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/containers/aardvark-dns/metrics"
)

// PerResolverTimeout bounds a single resolver attempt. Not retried past one
// attempt per resolver: fallback to the next resolver plays that role.
// Overridable at startup from the daemon's settings file; defaults match
// the compiled-in default in settings.Defaults.
var PerResolverTimeout = 2500 * time.Millisecond

const maxResolvers = 3

// udpBufferSize matches the listener's own EDNS0-tolerant buffer so a large
// upstream UDP reply isn't truncated on the way back through this daemon.
const udpBufferSize = 4096

// SetPerResolverTimeout overrides PerResolverTimeout from the daemon's
// loaded settings. Call once at startup, before serving any queries.
func SetPerResolverTimeout(d time.Duration) {
	PerResolverTimeout = d
}

// ResolverList builds the ordered, length-capped resolver list
// per query: container-scoped servers win, then network-scoped, then system
// resolvers. The first non-empty tier is used; tiers are not merged.
func ResolverList(containerServers, networkServers, systemServers []netip.Addr) []netip.Addr {
	var chosen []netip.Addr
	switch {
	case len(containerServers) > 0:
		chosen = containerServers
	case len(networkServers) > 0:
		chosen = networkServers
	default:
		chosen = systemServers
	}
	if len(chosen) > maxResolvers {
		chosen = chosen[:maxResolvers]
	}
	return chosen
}

// Forward tries each resolver in order over the given transport ("udp" or
// "tcp"), matching the client's transport. It returns the first successful
// reply. A truncated UDP reply is returned as-is: the client decides whether
// to retry over TCP, this forwarder never does that automatically.
func Forward(ctx context.Context, req *dns.Msg, resolvers []netip.Addr, transport string) (*dns.Msg, error) {
	var lastErr error

	for _, resolver := range resolvers {
		resp, err := exchangeOne(ctx, req, resolver, transport)
		if err != nil {
			zlog.Debug("forward attempt failed", "resolver", resolver.String(), "transport", transport, "error", err.Error())
			lastErr = err
			continue
		}
		return resp, nil
	}

	if lastErr == nil {
		lastErr = errNoResolvers
	}
	metrics.ForwardFailuresTotal.Inc()
	return nil, lastErr
}

func exchangeOne(ctx context.Context, req *dns.Msg, resolver netip.Addr, transport string) (*dns.Msg, error) {
	client := &dns.Client{Net: transport, Timeout: PerResolverTimeout, UDPSize: udpBufferSize}
	addr := netip.AddrPortFrom(resolver, 53).String()

	resp, _, err := client.ExchangeContext(ctx, req, addr)
	return resp, err
}

var errNoResolvers = &noResolversError{}

type noResolversError struct{}

func (*noResolversError) Error() string { return "no resolvers configured" }
