package handler

import (
	"context"
	"net/netip"
	"sort"
	"strings"

	"github.com/miekg/dns"

	"github.com/containers/aardvark-dns/config"
	"github.com/containers/aardvark-dns/revaddr"
)

// Authoritative is the chain's second stage: it answers from the snapshot
// when it can, and either terminates the request (match, or a miss that
// must not be forwarded) or calls Next to hand off to the forwarder.
type Authoritative struct{}

func (a *Authoritative) Name() string { return "authoritative" }

func (a *Authoritative) ServeDNS(ctx context.Context, ch *Chain) {
	q := ch.Request.Question[0]

	visible := visibleNetworks(ch.Snapshot, ch.Network, ch.Source)

	if revaddr.IsReverseName(q.Name) {
		a.servePTR(ctx, ch, q, visible)
		return
	}

	switch q.Qtype {
	case dns.TypeA, dns.TypeAAAA, dns.TypeANY:
		a.serveForward(ctx, ch, q, visible)
	default:
		// Any other qtype cannot match a container record; treat as a
		// miss subject to the same forward-eligibility rule.
		a.miss(ctx, ch, q.Name)
	}
}

func (a *Authoritative) serveForward(ctx context.Context, ch *Chain, q dns.Question, visible []string) {
	var ips []netip.Addr
	for _, network := range visible {
		if found, ok := config.LookupForward(ch.Snapshot, network, q.Name); ok {
			ips = found
			break
		}
	}

	if len(ips) == 0 {
		a.miss(ctx, ch, q.Name)
		return
	}

	msg := new(dns.Msg)
	msg.SetReply(ch.Request)
	msg.Authoritative = true
	msg.RecursionAvailable = ch.Request.RecursionDesired

	for _, ip := range ips {
		switch {
		case ip.Is4() && (q.Qtype == dns.TypeA || q.Qtype == dns.TypeANY):
			msg.Answer = append(msg.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 0},
				A:   ip.AsSlice(),
			})
		case ip.Is6() && (q.Qtype == dns.TypeAAAA || q.Qtype == dns.TypeANY):
			msg.Answer = append(msg.Answer, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 0},
				AAAA: ip.AsSlice(),
			})
		}
	}

	// A qtype that doesn't match the container's address family (e.g. AAAA
	// against a v4-only container) yields NOERROR with an empty answer
	// section, not NXDOMAIN: the name exists, this record type doesn't.
	_ = ch.Writer.WriteMsg(msg)
	ch.Cancel()
}

func (a *Authoritative) servePTR(ctx context.Context, ch *Chain, q dns.Question, visible []string) {
	ip, ok := revaddr.AddrFromReverseName(q.Name)
	if !ok {
		ch.CancelWithRcode(dns.RcodeFormatError, false)
		return
	}

	visibleSet := make(map[string]struct{}, len(visible))
	for _, n := range visible {
		visibleSet[n] = struct{}{}
	}

	var records []config.ReverseRecord
	for _, rec := range config.LookupReverse(ch.Snapshot, ip) {
		if _, ok := visibleSet[rec.Network]; ok {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		a.miss(ctx, ch, q.Name)
		return
	}

	msg := new(dns.Msg)
	msg.SetReply(ch.Request)
	msg.Authoritative = true
	msg.RecursionAvailable = ch.Request.RecursionDesired

	for _, rec := range records {
		msg.Answer = append(msg.Answer, &dns.PTR{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 0},
			Ptr: dns.Fqdn(rec.Name),
		})
	}

	_ = ch.Writer.WriteMsg(msg)
	ch.Cancel()
}

// miss decides between NXDOMAIN (terminal) and forwarding (Next) for a
// query that had no authoritative match.
func (a *Authoritative) miss(ctx context.Context, ch *Chain, qname string) {
	if ch.Snapshot.Networks[ch.Network].Internal {
		ch.CancelWithRcode(dns.RcodeNameError, true)
		return
	}
	if !forwardEligible(qname) {
		ch.CancelWithRcode(dns.RcodeNameError, false)
		return
	}
	ch.Next(ctx)
}

// forwardEligible applies the "don't forward short or in-zone names" rule:
// anything under the search domain, or a bare single-label name, is
// answered NXDOMAIN directly rather than sent upstream.
func forwardEligible(qname string) bool {
	name := strings.ToLower(strings.TrimSuffix(qname, "."))
	if name == "" {
		return false
	}
	if name == config.SearchDomain || strings.HasSuffix(name, "."+config.SearchDomain) {
		return false
	}
	return strings.Contains(name, ".")
}

// visibleNetworks returns the set of networks a request may see records
// from: the scope network plus every network the requesting container (if
// identified by source IP) is attached to.
func visibleNetworks(snap *config.BackendSnapshot, scope string, source netip.Addr) []string {
	set := map[string]struct{}{scope: {}}

	if source.IsValid() {
		if _, entry, ok := config.ContainerByIP(snap, source); ok {
			for network := range config.NetworksOf(snap, entry.ID) {
				set[network] = struct{}{}
			}
		}
	}

	// Deterministic order, scope network checked first so a name that
	// exists identically in two visible networks resolves to the
	// scope network's own record.
	delete(set, scope)
	rest := make([]string, 0, len(set))
	for network := range set {
		rest = append(rest, network)
	}
	sort.Strings(rest)

	return append([]string{scope}, rest...)
}
