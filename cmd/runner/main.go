// Copyright 2026 The Orgu Authors
// SPDX-License-Identifier: Apache-2.0

// Command runner receives CheckRequest envelopes, drives the GitHub
// check-run lifecycle, checks out the target commit, and runs the
// configured job under supervision.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Finatext/orgu/lib/checkout"
	"github.com/Finatext/orgu/lib/dispatcher"
	orgugithub "github.com/Finatext/orgu/lib/github"
	"github.com/Finatext/orgu/lib/httpserver"
	"github.com/Finatext/orgu/lib/jobexec"
	"github.com/Finatext/orgu/lib/process"
	"github.com/Finatext/orgu/lib/tokenminter"
	"github.com/Finatext/orgu/lib/version"
)

// shutdownTimeout is generous compared to front's default: an
// in-flight dispatch may be partway through a job, and graceful
// shutdown should give it the room to finish within its own job
// timeout rather than being cut off mid-checkout.
const shutdownTimeout = 15 * time.Minute

func main() {
	if len(os.Args) < 2 || os.Args[1] != "server" {
		fmt.Fprintln(os.Stderr, "usage: runner server [--addr=:8081]")
		os.Exit(2)
	}

	if err := runServer(os.Args[2:]); err != nil {
		process.Fatal(err)
	}
}

func runServer(args []string) error {
	var addr string
	var showVersion bool

	flagSet := pflag.NewFlagSet("runner server", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "", "HTTP listen address, overrides the default of :8081")
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
		cfg.listenAddress = ":8081"
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
		return fmt.Errorf("runner: creating GitHub client: %w", err)
	}

	tokens := tokenminter.New(tokenminter.Config{
		AppID:      cfg.appID,
		PrivateKey: cfg.privateKeyPEM,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	})

	dispatch := dispatcher.New(dispatcher.Config{
		Checks:          githubClient,
		Tokens:          tokens,
		Checkout:        checkout.New(logger),
		Jobs:            jobexec.New(logger),
		WorkDir:         cfg.workDir,
		JobArgv:         cfg.jobArgv,
		JobName:         cfg.jobName,
		JobTimeout:      cfg.jobTimeout,
		CheckoutTimeout: cfg.checkoutTimeout,
		Logger:          logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/run", newRunHandler(dispatch, logger))
	mux.HandleFunc("/health", healthHandler)

	server := httpserver.New(httpserver.Config{
		Address:         cfg.listenAddress,
		Handler:         mux,
		ShutdownTimeout: shutdownTimeout,
		Logger:          logger,
	})

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
		logger.Info("runner listening", "address", server.Addr().String())
	case err := <-serveDone:
		return err
	}

	<-ctx.Done()
	logger.Info("runner shutting down")
	return <-serveDone
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
