package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dotsetgreg/rumi/pkg/bus"
	"github.com/dotsetgreg/rumi/pkg/channels"
	"github.com/dotsetgreg/rumi/pkg/config"
	"github.com/dotsetgreg/rumi/pkg/ingest"
	"github.com/dotsetgreg/rumi/pkg/logger"
	"github.com/dotsetgreg/rumi/pkg/memory"
	"github.com/dotsetgreg/rumi/pkg/rumination"
)

// runGateway wires the store, model client, bus, ingest worker, retention
// sweeper and Discord channel, and runs until interrupted.
func runGateway(out io.Writer, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()

	client, err := newAIClient(cfg)
	if err != nil {
		return fmt.Errorf("create ai client: %w", err)
	}
	service := rumination.NewService(store, client, client).WithResponder(client, cfg.AI.Persona)

	msgBus := bus.NewMessageBus(bus.DefaultCapacity)
	worker, err := ingest.NewWorker(msgBus, store, ingest.Options{StoreTimeout: cfg.QueryTimeout()})
	if err != nil {
		return fmt.Errorf("create ingest worker: %w", err)
	}

	sweeper, err := memory.NewSweeper(store, memory.SweeperOptions{
		Policy:   retentionPolicy(cfg),
		Schedule: cfg.Retention.Schedule,
	})
	if err != nil {
		return fmt.Errorf("create retention sweeper: %w", err)
	}

	commands := channels.NewCommands(store, service, retentionPolicy(cfg), cfg.AI.Model)
	discord, err := channels.NewDiscordChannel(cfg.Discord, msgBus, commands)
	if err != nil {
		return fmt.Errorf("create discord channel: %w", err)
	}
	manager := channels.NewManager(msgBus)
	manager.RegisterChannel(discord)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The worker outlives ctx so it can drain the bus on shutdown.
	worker.Start(context.Background())
	sweeper.Start(ctx)
	fmt.Fprintf(out, "✓ Memory store: %s\n", store.Path())
	fmt.Fprintf(out, "✓ Retention: %d days raw, %d days summaries (%s)\n",
		cfg.Retention.RawDays, cfg.Retention.SummaryDays, cfg.Retention.Schedule)

	if err := manager.StartAll(ctx); err != nil {
		sweeper.Stop()
		msgBus.Close()
		worker.Stop()
		return err
	}
	fmt.Fprintln(out, "✓ Gateway started")
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Fprintln(out, "\nShutting down...")
	manager.StopAll(context.Background())
	sweeper.Stop()
	msgBus.Close()
	worker.Wait()

	stored, failed := worker.Counts()
	logger.InfoCF("gateway", "Gateway stopped", map[string]any{
		"stored":  stored,
		"failed":  failed,
		"dropped": msgBus.Stats().DroppedInbound,
	})
	fmt.Fprintln(out, "✓ Gateway stopped")
	return nil
}
