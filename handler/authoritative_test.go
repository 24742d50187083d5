package handler

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/containers/aardvark-dns/config"
	"github.com/containers/aardvark-dns/dnstest"
)

func loadSnapshot(t *testing.T, files map[string]string) *config.BackendSnapshot {
	t.Helper()
	dir := t.TempDir()
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}
	snap, err := config.Load(dir)
	require.NoError(t, err)
	return snap
}

func runChain(snap *config.BackendSnapshot, network, transport string, source netip.Addr, req *dns.Msg) *dnstest.Writer {
	w := dnstest.NewWriter(transport, "10.89.0.1:53", "10.89.0.2:9999")
	ch := NewChain([]Handler{&Recovery{}, &Authoritative{}, &Forwarder{}})
	ch.Reset(w, req, network, transport, source, snap, nil)
	ch.Next(context.Background())
	return w
}

func TestAuthoritativeAnswersForwardMatch(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" aone\n",
	})

	req := new(dns.Msg)
	req.SetQuestion("aone.dns.podman.", dns.TypeA)

	w := runChain(snap, "podman1", "udp", netip.Addr{}, req)
	require.NotNil(t, w.Msg())
	assert.Equal(t, dns.RcodeSuccess, w.Rcode())
	require.Len(t, w.Msg().Answer, 1)
	assert.True(t, w.Msg().Authoritative)

	a, ok := w.Msg().Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "10.89.0.2", a.A.String())
	assert.Equal(t, uint32(0), a.Hdr.Ttl)
}

func TestAuthoritativeRecursionAvailableMatchesRecursionDesired(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" aone\n",
	})

	for _, rd := range []bool{true, false} {
		req := new(dns.Msg)
		req.SetQuestion("aone.dns.podman.", dns.TypeA)
		req.RecursionDesired = rd

		w := runChain(snap, "podman1", "udp", netip.Addr{}, req)
		assert.Equal(t, rd, w.Msg().RecursionAvailable)
	}
}

func TestAuthoritativeShortNameMissIsNXDOMAIN(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" aone\n",
	})

	req := new(dns.Msg)
	req.SetQuestion("nosuch.", dns.TypeA)

	w := runChain(snap, "podman1", "udp", netip.Addr{}, req)
	assert.Equal(t, dns.RcodeNameError, w.Rcode())
}

func TestAuthoritativeSearchSuffixBareIsNXDOMAIN(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" aone\n",
	})

	req := new(dns.Msg)
	req.SetQuestion("dns.podman.", dns.TypeA)

	w := runChain(snap, "podman1", "udp", netip.Addr{}, req)
	assert.Equal(t, dns.RcodeNameError, w.Rcode())
}

func TestAuthoritativeInternalNetworkNeverForwards(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"isolated": "10.89.1.1 internal\nc1 10.89.1.2 \"\" aone\n",
	})

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	w := runChain(snap, "isolated", "udp", netip.Addr{}, req)
	assert.Equal(t, dns.RcodeNameError, w.Rcode())
	assert.True(t, w.Msg().Authoritative)
}

func TestAuthoritativePTRReturnsPrimaryThenAlias(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" atwo,atwo-alias\n",
	})

	req := new(dns.Msg)
	req.SetQuestion("2.0.89.10.in-addr.arpa.", dns.TypePTR)

	w := runChain(snap, "podman1", "udp", netip.Addr{}, req)
	require.Len(t, w.Msg().Answer, 2)

	ptr0 := w.Msg().Answer[0].(*dns.PTR)
	ptr1 := w.Msg().Answer[1].(*dns.PTR)
	assert.Equal(t, "atwo.", ptr0.Ptr)
	assert.Equal(t, "atwo-alias.", ptr1.Ptr)
}

func TestAuthoritativeCrossNetworkVisibility(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" aone\n",
		"podman2": "10.89.1.1\nc1 10.89.1.2 \"\" aone-on-net2\nc2 10.89.1.3 \"\" atwo\n",
	})

	// c1 is attached to both networks; querying from it on podman2's
	// listener for a name that only exists on podman1 must still resolve,
	// since c1's own network membership makes podman1 visible to it.
	req := new(dns.Msg)
	req.SetQuestion("aone.dns.podman.", dns.TypeA)

	w := runChain(snap, "podman2", "udp", netip.MustParseAddr("10.89.1.2"), req)
	require.Len(t, w.Msg().Answer, 1)
	a := w.Msg().Answer[0].(*dns.A)
	assert.Equal(t, "10.89.0.2", a.A.String())
}

func TestAuthoritativeDistinctNetworksDoNotSeeEachOther(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" aone\n",
		"podman2": "10.89.1.1\nc2 10.89.1.2 \"\" atwo\n",
	})

	// atwo, sourced from its own network, cannot see aone on podman1...
	miss := new(dns.Msg)
	miss.SetQuestion("aone.dns.podman.", dns.TypeA)
	w := runChain(snap, "podman2", "udp", netip.MustParseAddr("10.89.1.2"), miss)
	assert.Equal(t, dns.RcodeNameError, w.Rcode())

	// ...but still resolves itself on its own listener.
	self := new(dns.Msg)
	self.SetQuestion("atwo.dns.podman.", dns.TypeA)
	w = runChain(snap, "podman2", "udp", netip.MustParseAddr("10.89.1.2"), self)
	require.Len(t, w.Msg().Answer, 1)
	assert.Equal(t, "10.89.1.2", w.Msg().Answer[0].(*dns.A).A.String())
}

func TestAuthoritativeUnknownRequesterSeesOnlyScopeNetwork(t *testing.T) {
	snap := loadSnapshot(t, map[string]string{
		"podman1": "10.89.0.1\nc1 10.89.0.2 \"\" shared\n",
		"podman2": "10.89.1.1\nc2 10.89.1.2 \"\" other\n",
	})

	req := new(dns.Msg)
	req.SetQuestion("shared.dns.podman.", dns.TypeA)

	w := runChain(snap, "podman2", "udp", netip.Addr{}, req)
	assert.Equal(t, dns.RcodeNameError, w.Rcode())
}
