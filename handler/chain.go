package handler

import (
	"context"
	"net/netip"

	"github.com/miekg/dns"

	"github.com/containers/aardvark-dns/config"
	"github.com/containers/aardvark-dns/resolvconf"
)

// Handler is one stage in a query's processing chain.
type Handler interface {
	Name() string
	ServeDNS(ctx context.Context, ch *Chain)
}

// Chain carries one request through its handler stages. A stage calls
// Next to hand off to the following stage, or CancelWithRcode/Cancel once
// it has written (or decided not to write) a response.
type Chain struct {
	Writer  dns.ResponseWriter
	Request *dns.Msg

	// Network is the authoritative scope: the network owning the listener
	// IP this request arrived on.
	Network string
	// Transport is "udp" or "tcp", matching the incoming connection.
	Transport string
	// Source is the request's source address, used to identify the
	// requesting container for the visibility rule.
	Source netip.Addr

	Snapshot  *config.BackendSnapshot
	Resolvers *resolvconf.SystemResolvers

	handlers []Handler
	head     int
	count    int
}

// NewChain builds a chain over the given stages, in order.
func NewChain(handlers []Handler) *Chain {
	return &Chain{handlers: handlers, count: len(handlers)}
}

// Next invokes the next stage in the chain, if any remain.
func (ch *Chain) Next(ctx context.Context) {
	if ch.count == 0 {
		return
	}
	h := ch.handlers[ch.head]
	ch.head = (ch.head + 1) % len(ch.handlers)
	ch.count--
	h.ServeDNS(ctx, ch)
}

// Cancel stops the chain without writing a response. Used when an earlier
// stage already wrote one directly.
func (ch *Chain) Cancel() { ch.count = 0 }

// CancelWithRcode writes an empty response with the given RCODE and stops
// the chain. RA mirrors the request's RD bit per the authoritative header
// rule; AA is set from the authoritative argument.
func (ch *Chain) CancelWithRcode(rcode int, authoritative bool) {
	m := new(dns.Msg)
	m.SetRcode(ch.Request, rcode)
	m.Authoritative = authoritative
	m.RecursionAvailable = ch.Request.RecursionDesired

	_ = ch.Writer.WriteMsg(m)
	ch.count = 0
}

// Reset prepares the chain for a new request, restoring it to its first
// stage.
func (ch *Chain) Reset(w dns.ResponseWriter, r *dns.Msg, network, transport string, source netip.Addr, snap *config.BackendSnapshot, resolvers *resolvconf.SystemResolvers) {
	ch.Writer = w
	ch.Request = r
	ch.Network = network
	ch.Transport = transport
	ch.Source = source
	ch.Snapshot = snap
	ch.Resolvers = resolvers
	ch.head = 0
	ch.count = len(ch.handlers)
}
