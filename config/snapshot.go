package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/semihalev/zlog/v2"
)

// validNetworkName matches the invariant on config directory filenames.
var validNetworkName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// forwardKey identifies one name within one network's forward index.
type forwardKey struct {
	network string
	name    string
}

// ReverseRecord is one PTR answer candidate: a name owned by a container on
// a given network.
type ReverseRecord struct {
	Name    string
	Network string
}

// BackendSnapshot is the immutable view built from a config directory at one
// reload generation. Never mutated after Load returns it; a new reload
// produces a brand new snapshot instead.
type BackendSnapshot struct {
	Networks map[string]*NetworkConfig

	// ListenerNetwork maps a bind IP to the single network that owns it.
	// Listeners MUST be exactly this key set after a reload.
	ListenerNetwork map[netip.Addr]string

	forward map[forwardKey][]netip.Addr
	reverse map[netip.Addr][]reverseHit
	members map[string]map[string]struct{} // container id -> set of network names
}

type reverseHit struct {
	network string
	entry   *ContainerEntry
}

// SearchSuffix returns the fully-qualified search domain suffix, including
// the trailing dot DNS wire names carry.
func SearchSuffix() string { return SearchDomain + "." }

// Load reads every regular file in dir, parses it as a network config, and
// builds the derived indices. Per-file parse failures are logged and that
// file is skipped; the resulting snapshot only reflects files that parsed.
// A directory that cannot be read at all is a fatal error.
func Load(dir string) (*BackendSnapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	networks := make(map[string]*NetworkConfig)
	// preserve directory order for deterministic conflict resolution
	var order []string

	for _, de := range entries {
		if de.IsDir() || !de.Type().IsRegular() && de.Type()&os.ModeSymlink == 0 {
			continue
		}
		name := de.Name()
		if !validNetworkName.MatchString(name) {
			zlog.Warn("Skipping config file with invalid network name", "file", name)
			continue
		}

		nc, err := parseFile(name, filepath.Join(dir, name))
		if err != nil {
			zlog.Error("Rejected network config file", "file", name, "error", err.Error())
			continue
		}

		networks[name] = nc
		order = append(order, name)
	}

	snap := &BackendSnapshot{
		Networks:        make(map[string]*NetworkConfig),
		ListenerNetwork: make(map[netip.Addr]string),
		forward:         make(map[forwardKey][]netip.Addr),
		reverse:         make(map[netip.Addr][]reverseHit),
		members:         make(map[string]map[string]struct{}),
	}

	sort.Strings(order)
	for _, name := range order {
		nc := networks[name]

		conflict := false
		for _, ip := range nc.BindIPs {
			if owner, ok := snap.ListenerNetwork[ip]; ok {
				zlog.Error("Listener IP already claimed by another network, dropping network",
					"ip", ip.String(), "network", name, "owner", owner)
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		for _, ip := range nc.BindIPs {
			snap.ListenerNetwork[ip] = name
		}
		snap.Networks[name] = nc
		snap.index(name, nc)
	}

	return snap, nil
}

func (s *BackendSnapshot) index(network string, nc *NetworkConfig) {
	for i := range nc.Entries {
		entry := &nc.Entries[i]

		if s.members[entry.ID] == nil {
			s.members[entry.ID] = make(map[string]struct{})
		}
		s.members[entry.ID][network] = struct{}{}

		for _, name := range entry.Names {
			key := forwardKey{network: network, name: name}
			if _, exists := s.forward[key]; exists {
				zlog.Warn("Duplicate name within network, keeping first",
					"network", network, "name", name)
				continue
			}
			var ips []netip.Addr
			ips = append(ips, entry.V4...)
			ips = append(ips, entry.V6...)
			s.forward[key] = ips
		}

		hit := reverseHit{network: network, entry: entry}
		for _, ip := range entry.V4 {
			s.reverse[ip] = append(s.reverse[ip], hit)
		}
		for _, ip := range entry.V6 {
			s.reverse[ip] = append(s.reverse[ip], hit)
		}
	}
}

// LookupForward resolves qname within network's forward index. It applies
// the search-domain rule: a name ending in ".dns.podman." has the suffix
// stripped before lookup, and a query for the bare suffix is a deliberate
// miss (ok=false) rather than a lookup for the empty name.
func LookupForward(snap *BackendSnapshot, network, qname string) ([]netip.Addr, bool) {
	name := strings.ToLower(qname)
	name = strings.TrimSuffix(name, ".")

	suffix := SearchDomain
	if name == suffix {
		return nil, false
	}
	name = strings.TrimSuffix(name, "."+suffix)

	ips, ok := snap.forward[forwardKey{network: network, name: name}]
	return ips, ok
}

// LookupReverse returns every (name, network) pair owned by ip, primary name
// first within each owning entry, in the order entries were indexed.
func LookupReverse(snap *BackendSnapshot, ip netip.Addr) []ReverseRecord {
	var out []ReverseRecord
	for _, hit := range snap.reverse[ip] {
		for _, name := range hit.entry.Names {
			out = append(out, ReverseRecord{Name: name, Network: hit.network})
		}
	}
	return out
}

// NetworksOf returns the set of networks containerID is attached to.
func NetworksOf(snap *BackendSnapshot, containerID string) map[string]struct{} {
	return snap.members[containerID]
}

// ContainerByIP returns the container entry (and its network) owning ip, if
// any. Used by the handler to resolve container-scoped DNS servers for a
// request's source address and to identify the requester's own networks.
func ContainerByIP(snap *BackendSnapshot, ip netip.Addr) (network string, entry *ContainerEntry, ok bool) {
	hits := snap.reverse[ip]
	if len(hits) == 0 {
		return "", nil, false
	}
	return hits[0].network, hits[0].entry, true
}
