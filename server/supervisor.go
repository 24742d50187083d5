// Package server owns the listener lifecycle: binding one UDP/TCP pair per
// network's bind IP, and adding/retiring listeners as the configuration
// directory is reloaded.
package server

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semihalev/zlog/v2"
	"golang.org/x/sync/errgroup"

	"github.com/containers/aardvark-dns/config"
	"github.com/containers/aardvark-dns/metrics"
	"github.com/containers/aardvark-dns/resolvconf"
)

// drainTimeout bounds how long a retiring listener is given to finish
// in-flight requests before it is dropped outright.
const drainTimeout = 10 * time.Second

// Supervisor owns the current snapshot and the set of live listeners
// derived from it. It is the sole writer of the snapshot pointer; listeners
// only ever read through the accessor Supervisor hands them.
type Supervisor struct {
	configDir string
	port      int

	snapshot  atomic.Pointer[config.BackendSnapshot]
	resolvers *resolvconf.Watcher

	mu        sync.Mutex
	listeners map[netip.Addr]*Listener
}

// New builds a Supervisor over configDir. It does not bind any sockets
// until Start is called.
func New(configDir string, port int, resolvers *resolvconf.Watcher) *Supervisor {
	return &Supervisor{
		configDir: configDir,
		port:      port,
		resolvers: resolvers,
		listeners: make(map[netip.Addr]*Listener),
	}
}

// Snapshot returns the currently published snapshot. Safe for concurrent
// use; passed to listeners as their read accessor.
func (s *Supervisor) Snapshot() *config.BackendSnapshot { return s.snapshot.Load() }

func (s *Supervisor) currentResolvers() *resolvconf.SystemResolvers {
	if s.resolvers == nil {
		return &resolvconf.SystemResolvers{}
	}
	return s.resolvers.Current()
}

// Start loads the initial snapshot and binds a listener for every bind IP
// it names. An empty directory is valid: Start returns with zero listeners,
// and the caller is expected to shut down (see Reload's same rule).
func (s *Supervisor) Start(ctx context.Context) error {
	snap, err := config.Load(s.configDir)
	if err != nil {
		return err
	}
	s.snapshot.Store(snap)

	return s.bindAll(ctx, snap)
}

func (s *Supervisor) bindAll(ctx context.Context, snap *config.BackendSnapshot) error {
	g, _ := errgroup.WithContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	for ip, network := range snap.ListenerNetwork {
		ip, network := ip, network
		l := NewListener(ip, network, s.port, s.Snapshot, s.currentResolvers)
		s.listeners[ip] = l

		g.Go(func() error {
			return l.Start(s.port)
		})
	}

	return g.Wait()
}

// Reload re-parses the config directory, publishes the new snapshot, and
// reconciles listeners to match it: binding newly-added networks' IPs and
// draining removed ones. Kept IPs get the new snapshot for free, since
// listeners always read through Supervisor's accessor. It returns true if
// the daemon should shut down (no networks remain).
func (s *Supervisor) Reload(ctx context.Context) (shutdown bool, err error) {
	newSnap, err := config.Load(s.configDir)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	var toAdd, toRemove []netip.Addr
	for ip := range newSnap.ListenerNetwork {
		if _, ok := s.listeners[ip]; !ok {
			toAdd = append(toAdd, ip)
		}
	}
	for ip := range s.listeners {
		if _, ok := newSnap.ListenerNetwork[ip]; !ok {
			toRemove = append(toRemove, ip)
		}
	}
	s.mu.Unlock()

	sort.Slice(toAdd, func(i, j int) bool { return toAdd[i].String() < toAdd[j].String() })
	sort.Slice(toRemove, func(i, j int) bool { return toRemove[i].String() < toRemove[j].String() })

	g, gctx := errgroup.WithContext(ctx)

	for _, ip := range toRemove {
		ip := ip
		g.Go(func() error {
			return s.retire(ctx, ip)
		})
	}

	for _, ip := range toAdd {
		ip := ip
		network := newSnap.ListenerNetwork[ip]
		g.Go(func() error {
			return s.bind(gctx, ip, network)
		})
	}

	if werr := g.Wait(); werr != nil {
		zlog.Error("Reload encountered listener errors", "error", werr.Error())
	}

	// Publish last: any listener observing the new handle from here on
	// also has its membership already reconciled.
	s.snapshot.Store(newSnap)

	metrics.ReloadsTotal.Inc()
	zlog.Info("Reload complete", "networks", len(newSnap.Networks), "added", len(toAdd), "removed", len(toRemove))

	return len(newSnap.Networks) == 0, nil
}

func (s *Supervisor) bind(ctx context.Context, ip netip.Addr, network string) error {
	l := NewListener(ip, network, s.port, s.Snapshot, s.currentResolvers)
	if err := l.Start(s.port); err != nil {
		zlog.Error("Failed to bind new listener", "ip", ip.String(), "network", network, "error", err.Error())
		return err
	}

	s.mu.Lock()
	s.listeners[ip] = l
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) retire(ctx context.Context, ip netip.Addr) error {
	s.mu.Lock()
	l, ok := s.listeners[ip]
	delete(s.listeners, ip)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	if err := l.Shutdown(drainCtx); err != nil {
		zlog.Warn("Listener drain did not finish cleanly", "ip", ip.String(), "error", err.Error())
	}
	return nil
}

// Shutdown drains every listener. Called on SIGINT/SIGTERM.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ips := make([]netip.Addr, 0, len(s.listeners))
	for ip := range s.listeners {
		ips = append(ips, ip)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, ip := range ips {
		ip := ip
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.retire(ctx, ip)
		}()
	}
	wg.Wait()
}
