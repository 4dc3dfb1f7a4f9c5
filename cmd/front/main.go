// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Command front ingests GitHub webhooks, verifies and canonicalizes
// them into CheckRequest envelopes, and relays those envelopes toward
// the runner.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/spf13/pflag"

	"github.com/Finatext/orgu/lib/clock"
	"github.com/Finatext/orgu/lib/events"
	orgugithub "github.com/Finatext/orgu/lib/github"
	"github.com/Finatext/orgu/lib/httpserver"
	"github.com/Finatext/orgu/lib/process"
	"github.com/Finatext/orgu/lib/relay"
	"github.com/Finatext/orgu/lib/version"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "server" {
		fmt.Fprintln(os.Stderr, "usage: front server [--addr=:8080]")
		os.Exit(2)
	}

	if err := runServer(os.Args[2:]); err != nil {
		process.Fatal(err)
	}
}

func runServer(args []string) error {
	var addr string
	var showVersion bool

	flagSet := pflag.NewFlagSet("front server", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "", "HTTP listen address, overrides the default of :8080")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		process.Usage(err)
	}

	if showVersion {
		fmt.Println(version.Full())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.listenAddress = addr
	} else if cfg.listenAddress == "" {
		cfg.listenAddress = ":8080"
	}

	logger := newLogger(cfg.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	githubClient, err := orgugithub.NewClient(orgugithub.Config{
		AppID:          cfg.appID,
		PrivateKey:     cfg.privateKeyPEM,
		InstallationID: cfg.installationID,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("front: creating GitHub client: %w", err)
	}

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}

	canonicalizer := events.New(cfg.installationID, clock.Real(), logger)
	handler := newWebhookHandler(cfg.webhookSecret, canonicalizer, githubClient, publisher, logger)

	mux := http.NewServeMux()
	mux.Handle("/github/events", handler)
	mux.HandleFunc("/health", healthHandler)

	server := httpserver.New(httpserver.Config{
		Address: cfg.listenAddress,
		Handler: mux,
		Logger:  logger,
	})

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
		logger.Info("front listening", "address", server.Addr().String())
	case err := <-serveDone:
		return err
	}

	<-ctx.Done()
	logger.Info("front shutting down")
	return <-serveDone
}

// buildPublisher constructs the relay.Publisher selected by cfg,
// lazily building an EventBridge client only when an event bus name
// is configured — front never needs AWS credentials otherwise.
func buildPublisher(ctx context.Context, cfg config, logger *slog.Logger) (relay.Publisher, error) {
	var busClient *eventbridge.Client
	if cfg.eventBusName != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("front: loading AWS config for event bus publishing: %w", err)
		}
		busClient = eventbridge.NewFromConfig(awsCfg)
	}

	return relay.New(relay.Config{
		EventBusName:   cfg.eventBusName,
		EventBusClient: busClient,
		RelayEndpoint:  cfg.relayEndpoint,
		RunnerEndpoint: cfg.runnerEndpoint,
		HTTPClient:     http.DefaultClient,
		Logger:         logger,
	}), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
