package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/isometry/ldap-gate/internal/auth"
	"github.com/isometry/ldap-gate/internal/config"
	"github.com/isometry/ldap-gate/internal/ldap"
	"github.com/isometry/ldap-gate/internal/metrics"
	"github.com/isometry/ldap-gate/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Connect to the directory, load every user and group, and serve sign-in
and the protected user routes until interrupted.

The process exits non-zero if the directory cannot be reached within five
seconds or the initial cache load fails.

Examples:
  # Start with a config file
  ldap-gate serve --config /etc/ldap-gate/config.yaml

  # Override the listen address
  LDAP_GATE_JWT_SECRET=... ldap-gate serve --listen 127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().String("listen", "0.0.0.0:4242", "HTTP listen address")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	ctx, err := loggingContext(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tflog.Info(ctx, "Starting ldap-gate", map[string]any{
		"version": Version,
		"commit":  Commit,
		"listen":  cfg.Server.Listen,
	})

	dir, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	if err := metrics.RegisterSessionStats(registry, dir.client.Stats); err != nil {
		return fmt.Errorf("failed to register session metrics: %w", err)
	}

	refresher := &ldap.Refresher{
		Users:    dir.users,
		Groups:   dir.groups,
		Interval: cfg.Cache.RefreshInterval,
		Observer: m,
	}
	if err := refresher.RefreshNow(ctx); err != nil {
		return fmt.Errorf("initial cache load failed: %w", err)
	}
	go refresher.Watch(ctx)

	tokens, err := auth.NewTokenService(cfg.TokenConfig())
	if err != nil {
		return fmt.Errorf("invalid token configuration: %w", err)
	}

	deps := server.Deps{
		SignIn:         auth.NewService(tokens, dir.users, m),
		Gate:           auth.NewGate(tokens, dir.users, m),
		Users:          dir.users,
		Groups:         dir.groups,
		Directory:      dir.client,
		Metrics:        m,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
		deps.MetricsPath = cfg.Metrics.Path
	}

	srv := server.New(server.NewRouter(deps), server.Options{
		Listen:          cfg.Server.Listen,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tflog.Info(ctx, "Caches loaded", map[string]any{
		"users":  dir.users.Len(),
		"groups": dir.groups.Len(),
	})

	if err := srv.Start(ctx); err != nil {
		return err
	}

	tflog.Info(ctx, "Shutdown complete")
	return nil
}
