// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/holomush/plugincore/internal/config"
	"github.com/holomush/plugincore/internal/hooks"
	"github.com/holomush/plugincore/internal/observability"
	"github.com/holomush/plugincore/pkg/errutil"
)

// Hook events fired by serve.
const (
	EventHostStarted  = "host.started"
	EventHostStopping = "host.stopping"
)

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, plugins observability.PluginLister) ObservabilityServer

	// StartBackoff paces retries of the observability listener.
	// Default: exponential from 100ms, 3 retries
	StartBackoff func() retry.Backoff

	// Ready, if set, is called once plugins are loaded.
	Ready func()
}

// NewServeCmd creates the serve subcommand. A nil deps uses the defaults.
func NewServeCmd(deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and run the host until signalled",
		Long: `Discover and install every plugin in the plugins directory, serve metrics
and health probes, and uninstall all plugins on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, deps)
		},
	}
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, plugins observability.PluginLister) ObservabilityServer {
			return observability.NewServer(addr, ready, observability.WithPluginLister(plugins))
		}
	}
	if out.StartBackoff == nil {
		out.StartBackoff = func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
		}
	}
	return &out
}

// runServe runs the host until ctx is cancelled, a signal arrives or the
// observability server fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var h *host
	listPlugins := func() []string {
		if h == nil {
			return nil
		}
		return h.manager.Plugins()
	}

	var obsServer ObservabilityServer
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load, listPlugins)
		metrics = obsServer.Metrics()
	}

	h, err := newHost(cfg, metrics)
	if err != nil {
		return err
	}

	if obsServer != nil {
		obsErrCh, err := startObservability(ctx, obsServer, deps.StartBackoff())
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	slog.InfoContext(ctx, "loading plugins", "dir", cfg.PluginsDir)
	if err := h.manager.LoadAll(ctx); err != nil {
		stopObservability(obsServer)
		return err
	}
	ready.Store(true)
	fireEvent(ctx, h, EventHostStarted)

	cmd.Println("plugincore started")
	slog.InfoContext(ctx, "host ready", "plugins", len(h.manager.Plugins()))
	if deps.Ready != nil {
		deps.Ready()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	fireEvent(shutdownCtx, h, EventHostStopping)
	if err := h.manager.Close(shutdownCtx); err != nil {
		errutil.LogErrorContext(shutdownCtx, slog.Default(), "error uninstalling plugins", err)
	}
	stopObservability(obsServer)

	slog.Info("shutdown complete")
	return nil
}

// startObservability starts srv, retrying while the listener cannot bind.
func startObservability(ctx context.Context, srv ObservabilityServer, backoff retry.Backoff) (<-chan error, error) {
	var errCh <-chan error
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		ch, err := srv.Start()
		if err == nil {
			errCh = ch
			return nil
		}
		if errutil.Code(err) == observability.CodeListenFailed {
			slog.Warn("observability listener unavailable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, oops.In("serve").Wrapf(err, "start observability server")
	}
	return errCh, nil
}

func stopObservability(srv ObservabilityServer) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// fireEvent delivers event to every installed hook and logs the outcome.
func fireEvent(ctx context.Context, h *host, event string) {
	results, err := hooks.FireAll(ctx, h.objects, event, map[string]string{"version": version})
	if err != nil {
		errutil.LogErrorContext(ctx, slog.Default(), "hook failed", err)
	}
	for id, out := range results {
		slog.InfoContext(ctx, "hook result", "event", event, "plugin", id, "result", out)
	}
}

// monitorServerErrors cancels ctx when the server reports an error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
