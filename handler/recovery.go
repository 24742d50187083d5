package handler

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"
)

// Recovery is the chain's first stage: it guarantees a panic anywhere
// downstream still yields a SERVFAIL response instead of taking down the
// listener goroutine.
type Recovery struct{}

func (r *Recovery) Name() string { return "recovery" }

func (r *Recovery) ServeDNS(ctx context.Context, ch *Chain) {
	defer func() {
		if rec := recover(); rec != nil {
			ch.CancelWithRcode(dns.RcodeServerFailure, false)

			zlog.Error("Recovered panic serving DNS query", "recover", rec)
			fmt.Fprintf(os.Stderr, "panic: %v\n\n", rec)
			debug.PrintStack()
		}
	}()

	ch.Next(ctx)
}
