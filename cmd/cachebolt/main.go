package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cachebolt/cachebolt/internal/config"
	"github.com/cachebolt/cachebolt/pkg/admin"
	"github.com/cachebolt/cachebolt/pkg/circuit"
	"github.com/cachebolt/cachebolt/pkg/logging"
	"github.com/cachebolt/cachebolt/pkg/memcache"
	"github.com/cachebolt/cachebolt/pkg/objectstore"
	"github.com/cachebolt/cachebolt/pkg/proxy"
	"github.com/cachebolt/cachebolt/pkg/writer"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger("cachebolt")

	backend, backendName, err := buildBackend(context.Background(), cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize storage backend")
		os.Exit(1)
	}

	var ready atomic.Bool

	memory := memcache.NewManager(memoryCapacityBytes, logger)
	uriCircuit := circuit.NewURICircuit(cfg.LatencyFailover.DefaultMaxLatencyMs, pathRules(cfg), failoverWindow)
	storageCircuit := circuit.NewStorageCircuit(int(cfg.StorageBackendFailures))
	cacheWriter := writer.New(backend, backendName, storageCircuit, writerQueueCapacity, logger)

	proxyHandler := proxy.New(proxy.Config{
		AppID:                 cfg.AppID,
		DownstreamBaseURL:     cfg.DownstreamBaseURL,
		DownstreamTimeout:     cfg.DownstreamTimeout(),
		MaxConcurrentRequests: int64(cfg.MaxConcurrentRequests),
		RefreshPercentage:     cfg.Cache.RefreshPercentage,
		TTL:                   cfg.TTL(),
		IgnoredHeaders:        cfg.IgnoredHeaderSet(),
	}, memory, backend, uriCircuit, storageCircuit, cacheWriter, logger)

	adminHandler := admin.New(cfg.AppID, memory, backend, ready.Load, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheWriter.Start(ctx)
	defer cacheWriter.Stop()

	go memcache.RunPressureMonitor(ctx, memory, memcache.DefaultPressureMonitorConfig(cfg.Cache.MemoryThreshold), memcache.SystemMemoryUsage, logger)
	go circuit.RunProbeLoop(ctx, storageCircuit, backend, cfg.BackendRetryInterval(), logger)

	proxyAddr := fmt.Sprintf(":%d", cfg.ProxyPort)
	proxyLn, err := net.Listen("tcp", proxyAddr)
	if err != nil {
		logger.Error().Err(err).Str("addr", proxyAddr).Msg("failed to bind proxy listener")
		os.Exit(1)
	}

	adminAddr := fmt.Sprintf(":%d", cfg.AdminPort)
	adminLn, err := net.Listen("tcp", adminAddr)
	if err != nil {
		logger.Error().Err(err).Str("addr", adminAddr).Msg("failed to bind admin listener")
		os.Exit(1)
	}

	proxySrv := &http.Server{Handler: proxyHandler, ReadHeaderTimeout: 10 * time.Second}
	adminSrv := &http.Server{Handler: adminHandler.Routes(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info().Str("addr", proxyAddr).Str("downstream", cfg.DownstreamBaseURL).Msg("proxy listener starting")
		if err := proxySrv.Serve(proxyLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("proxy server error")
			stop()
		}
	}()

	go func() {
		logger.Info().Str("addr", adminAddr).Msg("admin listener starting")
		if err := adminSrv.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("admin server error")
			stop()
		}
	}()

	ready.Store(true)

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = proxySrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
}

const (
	memoryCapacityBytes = 256 << 20 // 256MiB default hot-cache bound
	writerQueueCapacity = 1024
	failoverWindow      = 30 * time.Second
)

func pathRules(cfg config.Config) []circuit.PathRule {
	rules := make([]circuit.PathRule, 0, len(cfg.LatencyFailover.PathRules))
	for _, r := range cfg.LatencyFailover.PathRules {
		rules = append(rules, circuit.PathRule{Pattern: r.Compiled(), MaxLatencyMs: r.MaxLatencyMs})
	}
	return rules
}

func buildBackend(ctx context.Context, cfg config.Config) (objectstore.Backend, string, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
			b, err := objectstore.NewS3Endpoint(ctx, cfg.S3Bucket, endpoint, true)
			return b, "s3", err
		}
		b, err := objectstore.NewS3(ctx, cfg.S3Bucket)
		return b, "s3", err
	case config.BackendGCS:
		b, err := objectstore.NewGCS(ctx, cfg.GCSBucket)
		return b, "gcs", err
	case config.BackendAzure:
		account := os.Getenv("AZURE_STORAGE_ACCOUNT")
		accountURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
		b, err := objectstore.NewAzureBlob(accountURL, account, os.Getenv("AZURE_STORAGE_ACCESS_KEY"), cfg.AzureContainer)
		return b, "azure", err
	default:
		b, err := objectstore.NewLocalFS(cfg.LocalPath)
		return b, "local", err
	}
}
