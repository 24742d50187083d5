package config

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strings"
)

// parseFile parses a single network config file. The filename (without its
// directory) becomes the NetworkConfig's Name. Any malformed line rejects
// the whole file, per spec: "a reload that rejects any file proceeds with
// only the files that parsed."
func parseFile(name, path string) (*NetworkConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	nc := &NetworkConfig{Name: name}

	lineNo := 0
	haveFirstLine := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !haveFirstLine {
			if err := parseFirstLine(nc, line); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
			}
			haveFirstLine = true
			continue
		}

		entry, err := parseEntryLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
		nc.Entries = append(nc.Entries, *entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if !haveFirstLine {
		return nil, fmt.Errorf("%s: empty file", name)
	}
	if len(nc.BindIPs) == 0 {
		return nil, fmt.Errorf("%s: no bind IPs", name)
	}

	return nc, nil
}

// parseFirstLine parses "BIND_IP[,BIND_IP...][WS NS_IP[,NS_IP...]][WS internal]".
func parseFirstLine(nc *NetworkConfig, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("empty first line")
	}

	bindIPs, err := parseIPList(fields[0])
	if err != nil {
		return fmt.Errorf("bind ip list: %w", err)
	}
	if len(bindIPs) == 0 {
		return fmt.Errorf("empty bind ip list")
	}
	seen := make(map[netip.Addr]struct{}, len(bindIPs))
	for _, ip := range bindIPs {
		if _, dup := seen[ip]; dup {
			return fmt.Errorf("duplicate bind ip %s", ip)
		}
		seen[ip] = struct{}{}
	}
	nc.BindIPs = bindIPs

	rest := fields[1:]
	if len(rest) > 0 && rest[len(rest)-1] == "internal" {
		nc.Internal = true
		rest = rest[:len(rest)-1]
	}
	if len(rest) > 0 {
		nsIPs, err := parseIPList(rest[0])
		if err != nil {
			return fmt.Errorf("network dns server list: %w", err)
		}
		nc.DNSServers = nsIPs
	}

	return nil
}

// parseEntryLine parses "CID WS V4_LIST WS V6_LIST WS NAME_LIST [WS NS_LIST]".
func parseEntryLine(line string) (*ContainerEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil, fmt.Errorf("unparsable entry line %q", line)
	}

	entry := &ContainerEntry{ID: fields[0]}

	v4, err := parseIPList(fields[1])
	if err != nil {
		return nil, fmt.Errorf("v4 list: %w", err)
	}
	v6, err := parseIPList(fields[2])
	if err != nil {
		return nil, fmt.Errorf("v6 list: %w", err)
	}
	if len(v4) == 0 && len(v6) == 0 {
		return nil, fmt.Errorf("entry %s has no addresses", entry.ID)
	}
	for _, ip := range v4 {
		if !ip.Is4() {
			return nil, fmt.Errorf("entry %s: %s is not IPv4", entry.ID, ip)
		}
	}
	for _, ip := range v6 {
		if !ip.Is6() || ip.Is4In6() {
			return nil, fmt.Errorf("entry %s: %s is not IPv6", entry.ID, ip)
		}
	}
	entry.V4 = v4
	entry.V6 = v6

	names := strings.Split(fields[3], ",")
	seenName := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, dup := seenName[n]; dup {
			continue
		}
		seenName[n] = struct{}{}
		entry.Names = append(entry.Names, n)
	}
	if len(entry.Names) == 0 {
		return nil, fmt.Errorf("entry %s has no names", entry.ID)
	}

	if len(fields) > 4 {
		ns, err := parseIPList(fields[4])
		if err != nil {
			return nil, fmt.Errorf("entry %s: dns server list: %w", entry.ID, err)
		}
		entry.DNSServers = ns
	}

	return entry, nil
}

// parseIPList parses a comma-separated list of IPs. The literal `""` denotes
// an empty list.
func parseIPList(field string) ([]netip.Addr, error) {
	if field == `""` || field == "" {
		return nil, nil
	}

	var ips []netip.Addr
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ip, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("malformed ip %q: %w", part, err)
		}
		ips = append(ips, ip)
	}
	return ips, nil
}
