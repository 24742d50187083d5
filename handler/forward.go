package handler

import (
	"context"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/containers/aardvark-dns/config"
	"github.com/containers/aardvark-dns/forwarder"
)

// Forwarder is the chain's final stage: it relays the query upstream using
// the resolver selected for the requester and rewrites the reply header for
// the client.
type Forwarder struct{}

func (f *Forwarder) Name() string { return "forwarder" }

func (f *Forwarder) ServeDNS(ctx context.Context, ch *Chain) {
	nc := ch.Snapshot.Networks[ch.Network]

	var containerServers []netip.Addr
	if ch.Source.IsValid() {
		if _, entry, ok := config.ContainerByIP(ch.Snapshot, ch.Source); ok {
			containerServers = entry.DNSServers
		}
	}

	var systemServers []netip.Addr
	if ch.Resolvers != nil {
		systemServers = ch.Resolvers.Servers
	}

	resolvers := forwarder.ResolverList(containerServers, nc.DNSServers, systemServers)
	if len(resolvers) == 0 {
		ch.CancelWithRcode(dns.RcodeServerFailure, false)
		return
	}

	fctx, cancel := context.WithTimeout(ctx, forwarder.PerResolverTimeout*time.Duration(len(resolvers)))
	defer cancel()

	resp, err := forwarder.Forward(fctx, ch.Request, resolvers, ch.Transport)
	if err != nil {
		ch.CancelWithRcode(dns.RcodeServerFailure, false)
		return
	}

	resp.Id = ch.Request.Id
	resp.Response = true

	_ = ch.Writer.WriteMsg(resp)
	ch.Cancel()
}
