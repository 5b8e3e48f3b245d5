package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"blackboard/internal/bus"
	"blackboard/internal/logging"
	"blackboard/internal/persist"
	"blackboard/internal/relay"
	"blackboard/internal/supervisor"
)

func (cli *commandLine) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfg, err := cli.setup(fs, args)
	if err != nil {
		return err
	}

	db, err := persist.OpenBadger(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return err
	}
	defer db.Close()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	var natsURL string
	if cfg.Bus.Backend == "nats" && cfg.Bus.EmbeddedNATS {
		ns, err := supervisor.StartEmbeddedNATS(cfg.Server.Host, cfg.Bus.EmbeddedPort)
		if err != nil {
			return err
		}
		natsURL = ns.ClientURL()
		tree.AddMessagingService(ns)
		logging.Info().Str("url", natsURL).Msg("embedded NATS started")
	}

	b, err := bus.New(cfg.Bus, natsURL)
	if err != nil {
		return err
	}
	defer b.Close()

	hub := relay.NewHub(cfg.Relay, b)
	srv := relay.NewServer(cfg, hub, b, persist.NewBadgerStore(db))
	tree.AddMessagingService(hub)
	tree.AddAPIService(supervisor.NewHTTPService(srv.HTTPServer(), cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", cfg.Addr()).Str("bus", cfg.Bus.Backend).Msg("relay starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("relay stopped: %w", err)
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("services did not stop in time")
	}
	logging.Info().Msg("relay stopped")
	return nil
}
