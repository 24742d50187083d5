package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/semihalev/zlog/v2"

	"github.com/containers/aardvark-dns/server"
)

// shutdownTimeout is the hard deadline for draining in-flight requests
// before listeners are dropped outright.
const shutdownTimeout = 10 * time.Second

// Run wires SIGHUP to sup.Reload and SIGINT/SIGTERM to a graceful shutdown,
// blocking until a shutdown signal arrives or a reload reports that no
// networks remain. configDir is used to remove the pidfile on exit and, if
// a watch can be established, to trigger the same reload path whenever the
// launcher creates, rewrites, or removes a network file there without
// waiting for it to also send SIGHUP.
func Run(ctx context.Context, sup *server.Supervisor, configDir string) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	shutdownSig := make(chan os.Signal, 1)
	signal.Notify(shutdownSig, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sighup)
	defer signal.Stop(shutdownSig)

	configChanged, err := server.WatchConfigDir(configDir)
	if err != nil {
		zlog.Warn("Failed to watch config directory, relying on SIGHUP only", "dir", configDir, "error", err.Error())
	} else {
		defer configChanged.Stop()
	}

	reload := func(reason string) (shutdown bool) {
		zlog.Info("Reloading", "reason", reason)
		shutdown, err := sup.Reload(ctx)
		if err != nil {
			zlog.Error("Reload failed", "error", err.Error())
			return false
		}
		return shutdown
	}

	for {
		var configChangedCh <-chan struct{}
		if configChanged != nil {
			configChangedCh = configChanged.Reload()
		}

		select {
		case <-sighup:
			if reload("SIGHUP") {
				zlog.Info("No networks remain after reload, shutting down")
				gracefulShutdown(sup, configDir)
				return
			}

		case <-configChangedCh:
			if reload("config directory changed") {
				zlog.Info("No networks remain after reload, shutting down")
				gracefulShutdown(sup, configDir)
				return
			}

		case sig := <-shutdownSig:
			zlog.Info("Received shutdown signal", "signal", sig.String())
			Notice("aardvark-dns shutting down on signal " + sig.String())
			gracefulShutdown(sup, configDir)
			return

		case <-ctx.Done():
			gracefulShutdown(sup, configDir)
			return
		}
	}
}

func gracefulShutdown(sup *server.Supervisor, configDir string) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sup.Shutdown(shutdownCtx)

	if err := RemovePidFile(configDir); err != nil {
		zlog.Warn("Failed to remove pidfile", "error", err.Error())
	}
}
