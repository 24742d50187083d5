// Package revaddr decodes the IP address encoded in a PTR reverse name
// (in-addr.arpa. / ip6.arpa.). It does not build reverse names from
// addresses.
package revaddr

import (
	"net/netip"
	"strings"
)

const (
	suffixV4 = ".in-addr.arpa."
	suffixV6 = ".ip6.arpa."
)

// IsReverseName reports whether name falls in a reverse DNS zone this server
// answers authoritatively for.
func IsReverseName(name string) bool {
	return strings.HasSuffix(name, suffixV4) || strings.HasSuffix(name, suffixV6)
}

// AddrFromReverseName extracts the address encoded in a PTR query name. The
// second return is false if name isn't a well-formed reverse name.
func AddrFromReverseName(name string) (netip.Addr, bool) {
	switch {
	case strings.HasSuffix(name, suffixV4):
		return parseV4(name)
	case strings.HasSuffix(name, suffixV6):
		return parseV6(name)
	default:
		return netip.Addr{}, false
	}
}

func parseV4(name string) (netip.Addr, bool) {
	trimmed := strings.TrimSuffix(name, suffixV4)
	parts := strings.Split(trimmed, ".")
	if len(parts) != 4 {
		return netip.Addr{}, false
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	ip, err := netip.ParseAddr(strings.Join(parts, "."))
	if err != nil || !ip.Is4() {
		return netip.Addr{}, false
	}
	return ip, true
}

func parseV6(name string) (netip.Addr, bool) {
	trimmed := strings.TrimSuffix(name, suffixV6)
	nibbles := strings.Split(trimmed, ".")
	if len(nibbles) != 32 {
		return netip.Addr{}, false
	}
	for i, j := 0, len(nibbles)-1; i < j; i, j = i+1, j-1 {
		nibbles[i], nibbles[j] = nibbles[j], nibbles[i]
	}

	var groups [8]string
	for i := 0; i < 8; i++ {
		part := strings.Join(nibbles[i*4:i*4+4], "")
		if len(part) != 4 {
			return netip.Addr{}, false
		}
		groups[i] = part
	}

	ip, err := netip.ParseAddr(strings.Join(groups[:], ":"))
	if err != nil || !ip.Is6() {
		return netip.Addr{}, false
	}
	return ip, true
}

