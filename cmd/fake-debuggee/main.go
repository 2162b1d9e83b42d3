// ABOUTME: Fake debuggee process that runs a real agent against a controller.
// ABOUTME: Usage: fake-debuggee [-config agent.yaml] [-addr localhost:50061] [-service checkout]

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/debuglet/internal/actor"
	"github.com/2389/debuglet/internal/agent"
	"github.com/2389/debuglet/internal/backoff"
	"github.com/2389/debuglet/internal/config"
	"github.com/2389/debuglet/internal/controller"
	"github.com/2389/debuglet/internal/debuggee"
)

func main() {
	configPath := flag.String("config", "", "agent config file (YAML or TOML)")
	addr := flag.String("addr", "", "controller gRPC address (overrides config)")
	project := flag.String("project", "", "debuggee project (overrides config)")
	service := flag.String("service", "", "debuggee service (overrides config)")
	version := flag.String("version", "", "debuggee version (overrides config)")
	interval := flag.Duration("interval", 500*time.Millisecond, "time between simulated requests")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Controller.Addr = *addr
	}
	if *project != "" {
		cfg.Debuggee.Project = *project
	}
	if *service != "" {
		cfg.Debuggee.Service = *service
	}
	if *version != "" {
		cfg.Debuggee.Version = *version
	}
	if cfg.Debuggee.Project == "" {
		cfg.Debuggee.Project = "fake"
	}
	if cfg.Debuggee.Service == "" {
		cfg.Debuggee.Service = "fake-debuggee"
	}

	if err := cfg.ValidateAgent(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging, os.Stderr)
	if err := run(cfg, *interval, logger); err != nil {
		logger.Error("fake-debuggee failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, interval time.Duration, logger *slog.Logger) error {
	contexts, err := debuggee.LoadSourceContext(cfg.Debuggee.SourceContextFile)
	if err != nil {
		return fmt.Errorf("loading source context: %w", err)
	}
	descriptor := debuggee.NewDescriptor(cfg.Debuggee.Project, cfg.Debuggee.Service, cfg.Debuggee.Version, contexts...)
	for k, v := range cfg.Debuggee.Labels {
		descriptor.Labels[k] = v
	}

	client, err := controller.Dial(controller.DialConfig{
		Addr:       cfg.Controller.Addr,
		Token:      cfg.Controller.Token,
		Insecure:   cfg.Controller.Insecure,
		CACertFile: cfg.Controller.CACertFile,
		ServerName: cfg.Controller.ServerName,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	registry := actor.NewRegistry(logger)
	sim := newSimulator(interval, cfg.Quota.Time, cfg.Quota.Count, logger)

	a := agent.New(client, descriptor, sim, agent.Config{
		Logger:              logger,
		Registry:            registry,
		RegistrationBackoff: backoff.NewWithParams(cfg.Agent.BackoffStart, cfg.Agent.BackoffMax, cfg.Agent.BackoffFactor),
		MaxQueueSize:        cfg.Agent.MaxQueueSize,
		DeliveryTimeout:     cfg.Agent.DeliveryTimeout,
	})
	sim.agent = a

	requests := actor.New("requests", sim,
		actor.WithLogger(logger),
		actor.WithRegistry(registry),
	)

	logger.Info("starting fake debuggee",
		"controller", cfg.Controller.Addr,
		"description", descriptor.Description,
		"uniquifier", descriptor.Uniquifier(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Start()
	requests.AsyncStart()

	<-ctx.Done()
	logger.Info("shutting down",
		"requests", sim.requests.Load(),
		"reported", sim.reported.Load(),
		"throttled", sim.throttled.Load(),
	)

	for _, r := range registry.ShutdownAll(cfg.Agent.ShutdownTimeout) {
		logger.Info("actor stopped", "actor", r.Name, "result", r.Result.String())
	}
	return nil
}
