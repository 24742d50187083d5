package forwarder

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/containers/aardvark-dns/metrics"
)

func TestResolverListPrefersContainerScoped(t *testing.T) {
	container := []netip.Addr{netip.MustParseAddr("10.0.0.53")}
	network := []netip.Addr{netip.MustParseAddr("10.0.0.1")}
	system := []netip.Addr{netip.MustParseAddr("8.8.8.8")}

	got := ResolverList(container, network, system)
	assert.Equal(t, container, got)
}

func TestResolverListFallsBackToNetworkThenSystem(t *testing.T) {
	network := []netip.Addr{netip.MustParseAddr("10.0.0.1")}
	system := []netip.Addr{netip.MustParseAddr("8.8.8.8")}

	assert.Equal(t, network, ResolverList(nil, network, system))
	assert.Equal(t, system, ResolverList(nil, nil, system))
}

func TestResolverListCapsAtThree(t *testing.T) {
	system := []netip.Addr{
		netip.MustParseAddr("1.1.1.1"),
		netip.MustParseAddr("2.2.2.2"),
		netip.MustParseAddr("3.3.3.3"),
		netip.MustParseAddr("4.4.4.4"),
	}
	got := ResolverList(nil, nil, system)
	assert.Len(t, got, 3)
}

func TestResolverListEmptyWhenNoTierHasServers(t *testing.T) {
	got := ResolverList(nil, nil, nil)
	assert.Empty(t, got)
}

// startStubUDPServer binds a stub upstream on port 53 of ip, since Forward
// always dials a resolver on port 53. Each test passes its own loopback
// address so no two stubs share a socket.
func startStubUDPServer(t *testing.T, ip string, handler dns.HandlerFunc) netip.Addr {
	t.Helper()

	pc, err := net.ListenPacket("udp", net.JoinHostPort(ip, "53"))
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	addrPort := pc.LocalAddr().(*net.UDPAddr).AddrPort()
	return addrPort.Addr()
}

func TestForwardSucceedsOnFirstResolver(t *testing.T) {
	addr := startStubUDPServer(t, "127.0.40.1", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 30},
			A:   net.ParseIP("93.184.216.34"),
		})
		_ = w.WriteMsg(m)
	})

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	req.Id = 42

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := Forward(ctx, req, []netip.Addr{addr}, "udp")
	require.NoError(t, err)
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	assert.Len(t, resp.Answer, 1)
}

func TestForwardFallsBackPastUnreachableResolver(t *testing.T) {
	prev := PerResolverTimeout
	SetPerResolverTimeout(200 * time.Millisecond)
	t.Cleanup(func() { SetPerResolverTimeout(prev) })

	dead := netip.MustParseAddr("192.0.2.1") // TEST-NET-1, unreachable
	good := startStubUDPServer(t, "127.0.40.2", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		_ = w.WriteMsg(m)
	})

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	// No overall deadline here: each resolver attempt is bounded by the
	// forwarder's own per-resolver timeout, exercised below.
	resp, err := Forward(context.Background(), req, []netip.Addr{dead, good}, "udp")
	require.NoError(t, err)
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
}

func TestForwardReturnsErrorWhenNoResolvers(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	_, err := Forward(context.Background(), req, nil, "udp")
	assert.Error(t, err)
}

// TestForwardFailsWhenOnlyResolverIsUnreachable exercises the single
// black-holed resolver case: every attempt runs out its per-resolver
// timeout and Forward reports the failure rather than hanging forever.
func TestForwardFailsWhenOnlyResolverIsUnreachable(t *testing.T) {
	prev := PerResolverTimeout
	SetPerResolverTimeout(200 * time.Millisecond)
	t.Cleanup(func() { SetPerResolverTimeout(prev) })

	dead := netip.MustParseAddr("192.0.2.1") // TEST-NET-1, unreachable

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	before := testutil.ToFloat64(metrics.ForwardFailuresTotal)

	start := time.Now()
	_, err := Forward(context.Background(), req, []netip.Addr{dead}, "udp")
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ForwardFailuresTotal))
}
