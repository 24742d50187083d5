package handler

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/miekg/dns"

	"github.com/containers/aardvark-dns/config"
	"github.com/containers/aardvark-dns/metrics"
	"github.com/containers/aardvark-dns/resolvconf"
)

// Server adapts one listener IP's query stream to the handler chain. It
// implements dns.Handler and is shared by that listener's UDP and TCP
// dns.Server instances.
type Server struct {
	// Network is the network this listener's IP belongs to.
	Network string
	// Snapshot returns the currently published snapshot. Read once per
	// request so concurrent reloads never affect a request already in
	// flight.
	Snapshot func() *config.BackendSnapshot
	// Resolvers returns the currently published system resolver list. May
	// be nil, in which case no system resolvers are used.
	Resolvers func() *resolvconf.SystemResolvers

	pool sync.Pool
}

func NewServer(network string, snapshot func() *config.BackendSnapshot, resolvers func() *resolvconf.SystemResolvers) *Server {
	s := &Server{Network: network, Snapshot: snapshot, Resolvers: resolvers}
	s.pool.New = func() any {
		return NewChain([]Handler{&Recovery{}, &Authoritative{}, &Forwarder{}})
	}
	return s
}

// ServeDNS implements github.com/miekg/dns's Handler interface, called by
// dns.Server per received query on this listener's UDP and TCP sockets.
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	if len(r.Question) != 1 {
		reject(w, r, dns.RcodeFormatError)
		return
	}
	if r.Opcode != dns.OpcodeQuery {
		reject(w, r, dns.RcodeNotImplemented)
		return
	}

	transport := "udp"
	if _, ok := w.RemoteAddr().(*net.TCPAddr); ok {
		transport = "tcp"
	}

	source := sourceAddr(w.RemoteAddr())

	ch := s.pool.Get().(*Chain)
	defer s.pool.Put(ch)

	var resolvers *resolvconf.SystemResolvers
	if s.Resolvers != nil {
		resolvers = s.Resolvers()
	}

	mw := &metricsWriter{ResponseWriter: w}
	ch.Reset(mw, r, s.Network, transport, source, s.Snapshot(), resolvers)
	ch.Next(context.Background())

	if mw.written {
		metrics.QueriesTotal.WithLabelValues(dns.TypeToString[r.Question[0].Qtype], dns.RcodeToString[mw.rcode]).Inc()
	}
}

// metricsWriter wraps the real dns.ResponseWriter to observe the rcode of
// whatever the chain ends up writing, for QueriesTotal.
type metricsWriter struct {
	dns.ResponseWriter
	rcode   int
	written bool
}

func (w *metricsWriter) WriteMsg(m *dns.Msg) error {
	w.rcode = m.Rcode
	w.written = true
	return w.ResponseWriter.WriteMsg(m)
}

func sourceAddr(addr net.Addr) netip.Addr {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, _ := netip.AddrFromSlice(a.IP)
		return ip.Unmap()
	case *net.TCPAddr:
		ip, _ := netip.AddrFromSlice(a.IP)
		return ip.Unmap()
	default:
		return netip.Addr{}
	}
}

func reject(w dns.ResponseWriter, r *dns.Msg, rcode int) {
	m := new(dns.Msg)
	m.SetRcode(r, rcode)
	_ = w.WriteMsg(m)
}
