// BucketDrive Server
//
// Features:
// - Folder browsing, uploads and presigned URLs over one S3 bucket
// - Trash and restore with a resumable move journal
// - Stars, sharing settings and short links stored in the bucket
// - Folder downloads streamed as zip
// - SSE change feed
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/bucketdrive/internal/api"
	"github.com/fruitsalade/bucketdrive/internal/auth"
	"github.com/fruitsalade/bucketdrive/internal/config"
	"github.com/fruitsalade/bucketdrive/internal/drive"
	"github.com/fruitsalade/bucketdrive/internal/events"
	"github.com/fruitsalade/bucketdrive/internal/logging"
	"github.com/fruitsalade/bucketdrive/internal/metrics"
	"github.com/fruitsalade/bucketdrive/internal/storage"
	"github.com/fruitsalade/bucketdrive/internal/storage/memory"
	s3storage "github.com/fruitsalade/bucketdrive/internal/storage/s3"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bucketdrive",
		Short:         "BucketDrive - a file drive over a single S3 bucket",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}
	root.PersistentFlags().StringP("config", "c", "", "Configuration file path")

	token := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue a bearer token for email signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	token.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	root.AddCommand(token)

	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	tok, err := auth.New(cfg.JWTSecret).IssueToken(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

// backend is the object store together with its URL issuer.
type backend interface {
	storage.Backend
	storage.URLSigner
}

func buildBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.StorageBackend {
	case "memory":
		return memory.New(), nil
	case "s3":
		b, err := s3storage.NewBackend(ctx, s3storage.BackendConfig{
			Endpoint:     cfg.S3Endpoint,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Region:       cfg.S3Region,
			CDNDomain:    cfg.CDNDomain,
			AlwaysUseCDN: cfg.AlwaysUseCDN,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return fmt.Errorf("logging init error: %w", err)
	}
	defer logging.Sync()

	logging.Info("BucketDrive server starting...",
		zap.String("version", version),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("backend", cfg.StorageBackend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	defer store.Close()

	broadcaster := events.NewBroadcaster()

	svc := drive.New(store, store, drive.Options{
		OwnerEmail:      cfg.OwnerEmail,
		AllowAnonymous:  cfg.AllowAnonymousAccess,
		CacheTTL:        cfg.CacheTTL,
		StorageCapacity: cfg.StorageCapacity,
		URLExpiry:       cfg.URLExpiry,
		RecentScanSize:  cfg.RecentScanSize,
		Events:          broadcaster,
	})

	resumed, err := svc.ResumeMoves(ctx)
	if err != nil {
		logging.Error("resuming interrupted moves failed", zap.Error(err))
	} else if resumed > 0 {
		logging.Info("resumed interrupted moves", zap.Int("count", resumed))
	}

	srv := api.NewServer(svc, auth.New(cfg.JWTSecret), broadcaster, api.Config{
		MaxUploadSize:  cfg.MaxUploadSize,
		RequestTimeout: cfg.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("http shutdown incomplete", zap.Error(err))
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	logging.Info("BucketDrive stopped")
	return nil
}
