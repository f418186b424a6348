// kubeface runs a batch job: it reads one JSON task per line from stdin,
// schedules them on the configured backend with object storage as the
// only coordination channel, and writes one JSON result per line to
// stdout in task order.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hal2001/kubeface/internal/backend"
	"github.com/hal2001/kubeface/internal/config"
	"github.com/hal2001/kubeface/internal/job"
	"github.com/hal2001/kubeface/internal/observability"
	"github.com/hal2001/kubeface/internal/storage"
)

func main() {
	// Results stream to stdout, so logs go to stderr.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		slog.Error("Job failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	jobCfg := config.LoadJobConfig()
	backendCfg := config.LoadBackendConfig()

	if jobCfg.StoragePrefix == "" {
		return errors.New("KUBEFACE_STORAGE_PREFIX is required")
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	store, err := newStorageClient(metrics)
	if err != nil {
		return err
	}

	b, cleanup, err := newBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Start metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + jobCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting metrics server", "port", jobCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown error", "error", err)
		}
	}()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	reporter := job.NewAsyncReporter(job.NewLogReporter(), 0)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := reporter.Close(closeCtx); err != nil {
			slog.Warn("Reporter shutdown error", "error", err)
		}
	}()

	tasks, scanErr := taskLines(os.Stdin)
	j, err := job.New[json.RawMessage, json.RawMessage](b, store, tasks, job.Config{
		MaxSimultaneousTasks: jobCfg.MaxSimultaneousTasks,
		StoragePrefix:        jobCfg.StoragePrefix,
		CacheKey:             jobCfg.CacheKey,
		NumTasks:             jobCfg.NumTasks,
		Cleanup:              jobCfg.Cleanup,
		PollInterval:         jobCfg.PollInterval,
		Reporter:             reporter,
		Metrics:              metrics,
	})
	if err != nil {
		return err
	}

	if err := j.Run(ctx); err != nil {
		return err
	}
	if err := *scanErr; err != nil {
		return fmt.Errorf("failed to read tasks: %w", err)
	}

	results, err := j.Results(ctx)
	if err != nil {
		return err
	}
	out := bufio.NewWriter(os.Stdout)
	for result, err := range results {
		if err != nil {
			return err
		}
		if _, err := out.Write(append(result, '\n')); err != nil {
			return err
		}
	}
	return out.Flush()
}

// taskLines yields one task per non-blank stdin line. The sequence is
// lazy: a line is read only when the orchestrator has a slot for it. Read
// errors surface through the returned pointer after the sequence ends.
func taskLines(r io.Reader) (iter.Seq[json.RawMessage], *error) {
	scanErr := new(error)
	seq := func(yield func(json.RawMessage) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			task := make(json.RawMessage, len(line))
			copy(task, line)
			if !yield(task) {
				return
			}
		}
		*scanErr = scanner.Err()
	}
	return seq, scanErr
}

func newStorageClient(metrics storage.MetricsRecorder) (*storage.Client, error) {
	cfg := config.LoadStorageConfig()
	if cfg.Driver != "minio" {
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
	driver, err := storage.NewMinioDriver(storage.MinioConfig{
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	retrier := &storage.Retrier{
		MaxRetries: uint64(cfg.MaxRetries),
		Base:       cfg.BackoffBase,
		Metrics:    metrics,
	}
	return storage.NewClient(driver, retrier), nil
}

func newBackend(ctx context.Context, cfg *config.BackendConfig) (backend.Backend, func(), error) {
	switch cfg.Kind {
	case "local":
		b := backend.NewLocalProcess(backend.LocalProcessConfig{
			WorkerCommand: cfg.WorkerCommand,
			DeleteInput:   cfg.DeleteInput,
		})
		return b, func() {}, nil
	case "docker":
		b, err := backend.NewDocker(ctx, backend.DockerConfig{
			WorkerImage: cfg.WorkerImage,
			Env:         storageEnv(),
			ExtraHosts:  cfg.ExtraHosts,
			DeleteInput: cfg.DeleteInput,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to Docker daemon")
		return b, func() {
			if err := b.Close(); err != nil {
				slog.Warn("Docker backend close error", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend: %s", cfg.Kind)
	}
}

// storageEnv forwards the storage connection settings of this process to
// worker containers.
func storageEnv() map[string]string {
	env := make(map[string]string)
	for _, key := range []string{
		"STORAGE_ENDPOINT", "STORAGE_REGION",
		"STORAGE_ACCESS_KEY", "STORAGE_SECRET_KEY",
		"STORAGE_USE_SSL", "STORAGE_MAX_RETRIES", "STORAGE_BACKOFF_BASE",
	} {
		if value := os.Getenv(key); value != "" {
			env[key] = value
		}
	}
	return env
}
