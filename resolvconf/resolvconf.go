// Package resolvconf reads /etc/resolv.conf into an ordered list of system
// resolvers and watches it for changes so the forwarder can pick up a
// modified upstream without waiting for a reload.
package resolvconf

import (
	"bufio"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

const maxServers = 3

// SystemResolvers is the ordered list of system nameservers, plus the ndots
// option, derived from one parse of resolv.conf.
type SystemResolvers struct {
	Servers []netip.Addr
	NDots   int
}

// Parse reads path (normally /etc/resolv.conf) and returns up to the first
// three nameserver entries, in order. IPv6 scope identifiers (%iface) are
// preserved since netip.Addr carries its zone natively. Unknown option
// lines are ignored; only "ndots:N" is retained, defaulting to 1.
func Parse(path string) (*SystemResolvers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := &SystemResolvers{NDots: 1}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		switch fields[0] {
		case "nameserver":
			if len(res.Servers) >= maxServers {
				continue
			}
			ip, ok := parseServerAddr(fields[1])
			if !ok {
				continue
			}
			res.Servers = append(res.Servers, ip)

		case "options":
			for _, opt := range fields[1:] {
				if n, ok := strings.CutPrefix(opt, "ndots:"); ok {
					if v, err := strconv.Atoi(n); err == nil {
						res.NDots = v
					}
				}
				// every other option (timeout, attempts, search, rotate,
				// ...) is read but intentionally discarded.
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// parseServerAddr accepts plain IPv4, bracketed or unbracketed IPv6, and
// IPv6 with a %scope zone identifier.
func parseServerAddr(field string) (netip.Addr, bool) {
	field = strings.TrimPrefix(field, "[")
	field = strings.TrimSuffix(field, "]")

	ip, err := netip.ParseAddr(field)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip, true
}
