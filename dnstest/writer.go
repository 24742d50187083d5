// Package dnstest provides an in-memory dns.ResponseWriter for exercising
// the query handler and forwarder without opening real sockets.
package dnstest

import (
	"net"

	"github.com/miekg/dns"
)

// Writer is a dns.ResponseWriter that records the message written to it
// instead of sending it anywhere.
type Writer struct {
	network string
	local   net.Addr
	remote  net.Addr
	msg     *dns.Msg
	closed  bool
}

// NewWriter builds a Writer as if a query arrived at localAddr from
// remoteAddr over network ("udp" or "tcp").
func NewWriter(network, localAddr, remoteAddr string) *Writer {
	w := &Writer{network: network}

	switch network {
	case "tcp":
		w.local, _ = net.ResolveTCPAddr("tcp", localAddr)
		w.remote, _ = net.ResolveTCPAddr("tcp", remoteAddr)
	default:
		w.local, _ = net.ResolveUDPAddr("udp", localAddr)
		w.remote, _ = net.ResolveUDPAddr("udp", remoteAddr)
	}

	return w
}

// Msg returns the last message written, or nil if none has been.
func (w *Writer) Msg() *dns.Msg { return w.msg }

// Rcode returns the last written message's RCODE, or SERVFAIL if nothing
// was written yet.
func (w *Writer) Rcode() int {
	if w.msg == nil {
		return dns.RcodeServerFailure
	}
	return w.msg.Rcode
}

// Closed reports whether Close was called.
func (w *Writer) Closed() bool { return w.closed }

func (w *Writer) WriteMsg(m *dns.Msg) error {
	w.msg = m
	return nil
}

func (w *Writer) Write(b []byte) (int, error) {
	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return 0, err
	}
	w.msg = m
	return len(b), nil
}

func (w *Writer) Close() error {
	w.closed = true
	return nil
}

func (w *Writer) LocalAddr() net.Addr        { return w.local }
func (w *Writer) RemoteAddr() net.Addr       { return w.remote }
func (w *Writer) TsigStatus() error          { return nil }
func (w *Writer) TsigTimersOnly(_ bool)      {}
func (w *Writer) Hijack()                    {}
func (w *Writer) Network() string            { return w.network }
