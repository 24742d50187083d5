package main

import (
	"context"
	"fmt"

	"github.com/semihalev/zlog/v2"
	"github.com/spf13/cobra"

	"github.com/containers/aardvark-dns/forwarder"
	"github.com/containers/aardvark-dns/lifecycle"
	"github.com/containers/aardvark-dns/resolvconf"
	"github.com/containers/aardvark-dns/server"
	"github.com/containers/aardvark-dns/settings"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the DNS server in the foreground of a daemonized child",
	RunE:  runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.String("resolv-conf", "/etc/resolv.conf", "path to the system resolver config to watch")
	flags.String("settings", "", "path to an optional daemon settings TOML file")
	flags.String("metrics-addr", "", "address to serve Prometheus metrics on, disabled if empty")
	flags.Bool("foreground", false, "run without forking a background child")
}

func runRun(cmd *cobra.Command, args []string) error {
	startedRun = true

	flags := cmd.Flags()
	configDir, _ := flags.GetString("config")
	port, _ := flags.GetInt("port")
	resolvConfPath, _ := flags.GetString("resolv-conf")
	settingsPath, _ := flags.GetString("settings")
	metricsAddr, _ := flags.GetString("metrics-addr")
	foreground, _ := flags.GetBool("foreground")

	cfg, err := settings.Load(settingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	forwarder.SetPerResolverTimeout(cfg.ForwardTimeout.Duration)
	server.SetTCPIdleTimeout(cfg.TCPIdleTimeout.Duration)
	lifecycle.TryInitSyslog(cfg.SyslogTag)

	var ready *lifecycle.ReadyWriter
	if foreground {
		ready = lifecycle.Foreground()
	} else {
		ready, err = lifecycle.Daemonize()
		if err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
	}

	if err := lifecycle.WritePidFile(configDir); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}

	resolvers, err := resolvconf.NewWatcher(resolvConfPath)
	if err != nil {
		return fmt.Errorf("watch resolv.conf: %w", err)
	}
	defer resolvers.Stop()

	sup := server.New(configDir, port, resolvers)

	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start listeners: %w", err)
	}

	metrics := server.NewMetricsServer(cfg.MetricsAddr)
	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	defer cancelMetrics()
	metrics.Run(metricsCtx)

	zlog.Info("aardvark-dns started", "config", configDir, "port", port)
	lifecycle.Notice("aardvark-dns started")

	if err := ready.Signal(); err != nil {
		zlog.Warn("Failed to signal readiness to parent", "error", err.Error())
	}

	lifecycle.Run(ctx, sup, configDir)
	return nil
}
