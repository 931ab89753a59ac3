package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hutchlabs/hutch/pkg/api"
	"github.com/hutchlabs/hutch/pkg/config"
	"github.com/hutchlabs/hutch/pkg/events"
	"github.com/hutchlabs/hutch/pkg/log"
	"github.com/hutchlabs/hutch/pkg/metrics"
	"github.com/hutchlabs/hutch/pkg/notify"
	"github.com/hutchlabs/hutch/pkg/reconciler"
	"github.com/hutchlabs/hutch/pkg/runtime"
	"github.com/hutchlabs/hutch/pkg/scheduler"
	"github.com/hutchlabs/hutch/pkg/security"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the supervisor and serve MCP tools on stdio",
	Long: `Start the job supervisor: connect to the container engine, reconcile
any containers left over from a previous run, and serve the MCP tool surface
on stdin/stdout until the client disconnects or the process is signalled.

Stdout carries the MCP protocol; all logging goes to stderr.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().String("image", "", "Job container image (overrides config)")
	serveCmd.Flags().String("engine", "", "Container engine: docker or containerd (overrides config)")
	serveCmd.Flags().String("health-addr", "", "Admin HTTP listen address for health and metrics (overrides config)")
	serveCmd.Flags().String("webhook-url", "", "Webhook URL for terminal job notifications (overrides config)")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("serve")

	store, err := storage.NewFileStore(cfg.SessionsDir, cfg.WorkspacesDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	engineCfg := runtime.EngineConfig{
		Image:        cfg.Image,
		Socket:       cfg.EngineSocket,
		StatusBudget: cfg.StatusBudget(),
	}
	var engine runtime.Runtime
	switch cfg.Engine {
	case "containerd":
		engine, err = runtime.NewContainerdEngine(engineCfg)
	default:
		engine, err = runtime.NewDockerEngine(engineCfg)
	}
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Engine, err)
	}
	defer engine.Close()

	// Credential discovery happens here, once; the core only sees the
	// capability flag and the source path.
	credSource := ""
	if dir, derr := security.DefaultSourceDir(); derr == nil && security.SourceUsable(dir) {
		credSource = dir
	}
	hasCredentials := credSource != "" || security.HasToken()
	var containerEnv []string
	if security.HasToken() {
		containerEnv = append(containerEnv, security.TokenEnvVar+"="+security.Token())
	}
	if !hasCredentials {
		logger.Warn().Msg("no assistant credentials found; starts will be rejected until ~/.claude or " + security.TokenEnvVar + " is provided")
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
	}

	sup := supervisor.New(supervisor.Config{
		Image:             cfg.Image,
		HasCredentials:    hasCredentials,
		CredentialSource:  credSource,
		ContainerEnv:      containerEnv,
		StartupTimeout:    cfg.StartupTimeout(),
		IdleOutputTimeout: cfg.IdleOutputTimeout(),
		IdleTimeout:       cfg.IdleTimeout(),
		TailBytes:         cfg.TailBytes,
	}, store, engine, notifier, broker)

	// One orphan pass in the background; serving does not wait for it.
	go reconciler.New(store, engine).Run(context.Background())

	var sched *scheduler.Scheduler
	if cfg.CleanupSchedule != "" {
		sched, err = scheduler.New(cfg.CleanupSchedule, sup.Cleanup)
		if err != nil {
			return err
		}
		sched.Start()
	}

	collector := metrics.NewCollector(store, broker)
	collector.Start()

	if cfg.HealthAddr != "" {
		hs := api.NewHealthServer(store, engine, Version)
		go func() {
			if herr := hs.Start(cfg.HealthAddr); herr != nil {
				logger.Warn().Err(herr).Msg("admin HTTP listener stopped")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(ctx)
		}()
	}

	mcpServer := api.NewServer(sup, api.Options{
		Version:     Version,
		OutputLimit: cfg.OutputLimitBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpServer.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case serveErr := <-errCh:
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("MCP server stopped")
		}
	}

	if sched != nil {
		sched.Stop()
	}
	collector.Stop()

	// Watchers get a grace window; containers they still track keep running
	// and the next serve's reconciliation pass settles them.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sup.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("watchers did not drain in time")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("image"); v != "" {
		cfg.Image = v
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		cfg.Engine = v
	}
	if v, _ := cmd.Flags().GetString("health-addr"); v != "" {
		cfg.HealthAddr = v
	}
	if v, _ := cmd.Flags().GetString("webhook-url"); v != "" {
		cfg.WebhookURL = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
}
