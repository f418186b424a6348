// kubeface-run-task executes a single task inside a worker process: it
// downloads the task input, runs it as a command, and uploads the result
// object that marks the task complete.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hal2001/kubeface/internal/config"
	"github.com/hal2001/kubeface/internal/storage"
	"github.com/hal2001/kubeface/internal/worker"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		slog.Error("Task failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	deleteInput := flag.Bool("delete-input", false, "delete the input object after a successful result upload")
	flag.Parse()

	if flag.NArg() != 2 {
		return fmt.Errorf("usage: %s [--delete-input] <input-path> <output-path>", os.Args[0])
	}
	inputPath, outputPath := flag.Arg(0), flag.Arg(1)

	store, err := newStorageClient(nil)
	if err != nil {
		return err
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	runner := worker.NewRunner(store, worker.ExecHandler, *deleteInput)
	return runner.Run(ctx, inputPath, outputPath)
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
