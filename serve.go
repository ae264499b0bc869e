package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drivebooks/drivebooks/internal/broker"
	"github.com/drivebooks/drivebooks/internal/drive"
	"github.com/drivebooks/drivebooks/internal/httpapi"
	"github.com/drivebooks/drivebooks/internal/library"
	"github.com/drivebooks/drivebooks/internal/store"
	"github.com/drivebooks/drivebooks/internal/vault"
)

// shutdownGrace bounds how long in-flight requests get to finish once a
// termination signal arrives.
const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadedCfg
	logger := buildLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, err := store.Open(ctx, cfg.Storage.DBPath, logger)
	if err != nil {
		return err
	}
	defer users.Close()

	v, err := vault.New(cfg.Secrets.VaultKey)
	if err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: cfg.Network.ConnectTimeoutDuration()}
	transport := &http.Transport{DialContext: dialer.DialContext}

	driveClient := drive.NewClient(drive.Options{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.Secrets.OAuthClientSecret,
		HTTPClient: &http.Client{
			Timeout:   cfg.Network.RequestTimeoutDuration(),
			Transport: transport,
		},
		DownloadClient: &http.Client{
			Timeout:   cfg.Network.DownloadTimeoutDuration(),
			Transport: transport,
		},
		Logger: logger,
	})

	server := httpapi.New(httpapi.Options{
		Config:     cfg,
		Users:      users,
		Vault:      v,
		Broker:     broker.New(users, v, driveClient, logger),
		Scanner:    library.NewScanner(driveClient, cfg.Limits, logger),
		Downloader: library.NewDownloader(driveClient, logger),
		Drive:      driveClient,
		Logger:     logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
