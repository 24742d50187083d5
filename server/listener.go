package server

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/containers/aardvark-dns/config"
	"github.com/containers/aardvark-dns/handler"
	"github.com/containers/aardvark-dns/resolvconf"
)

// tcpIdleTimeout is how long a TCP connection may sit with no query before
// the server drops it. Overridable at startup from the daemon's settings
// file; defaults match the compiled-in default in settings.Defaults.
var tcpIdleTimeout = 3 * time.Second

// defaultPort is the wire DNS port NewListener uses when it is given port
// 0; otherwise the supervisor's own configured port is used.
const defaultPort = 53

// udpBufferSize accepts a datagram up to EDNS0-sized buffers even though no
// EDNS0 option processing happens here; RFC 1035 alone would need only 512.
const udpBufferSize = 4096

// SetTCPIdleTimeout overrides tcpIdleTimeout from the daemon's loaded
// settings. Call once at startup, before any listener binds.
func SetTCPIdleTimeout(d time.Duration) {
	tcpIdleTimeout = d
}

// Listener owns the bound UDP and TCP sockets for one network's bind IP. It
// has no reference back to its Supervisor: it only reads through the
// snapshot/resolvers accessor functions it was built with, and reports
// startup failure once through Start's return value.
type Listener struct {
	IP      netip.Addr
	Network string

	handler *handler.Server
	udp     *dns.Server
	tcp     *dns.Server
}

// NewListener builds a listener for ip, bound to network's authoritative
// scope. snapshot and resolvers are read fresh on every request.
func NewListener(ip netip.Addr, network string, port int, snapshot func() *config.BackendSnapshot, resolvers func() *resolvconf.SystemResolvers) *Listener {
	if port == 0 {
		port = defaultPort
	}
	h := handler.NewServer(network, snapshot, resolvers)

	return &Listener{
		IP:      ip,
		Network: network,
		handler: h,
		udp:     &dns.Server{Net: "udp", Handler: h, UDPSize: udpBufferSize},
		tcp:     &dns.Server{Net: "tcp", Handler: h, IdleTimeout: func() time.Duration { return tcpIdleTimeout }},
	}
}

// addr renders the listener's bind address in host:port form, honoring an
// IPv6 zone if the address carries one.
func (l *Listener) addr(port int) string {
	return netip.AddrPortFrom(l.IP, uint16(port)).String()
}

// Start binds both sockets and begins serving. It returns once both sockets
// are bound (not once serving has stopped), so the caller can rely on a nil
// error meaning "this listener is live".
func (l *Listener) Start(port int) error {
	addr := l.addr(port)

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("bind udp %s: %w", addr, err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		pc.Close()
		return fmt.Errorf("bind tcp %s: %w", addr, err)
	}

	l.udp.PacketConn = pc
	l.tcp.Listener = ln

	go func() {
		if err := l.udp.ActivateAndServe(); err != nil {
			zlog.Error("UDP listener stopped", "ip", l.IP.String(), "network", l.Network, "error", err.Error())
		}
	}()
	go func() {
		if err := l.tcp.ActivateAndServe(); err != nil {
			zlog.Error("TCP listener stopped", "ip", l.IP.String(), "network", l.Network, "error", err.Error())
		}
	}()

	zlog.Info("Listener bound", "ip", l.IP.String(), "network", l.Network, "port", port)
	return nil
}

// Shutdown drains in-flight requests and releases both sockets. It honors
// ctx's deadline; queries still running when it expires are abandoned.
func (l *Listener) Shutdown(ctx context.Context) error {
	udpErr := l.udp.ShutdownContext(ctx)
	tcpErr := l.tcp.ShutdownContext(ctx)
	if udpErr != nil {
		return udpErr
	}
	return tcpErr
}
