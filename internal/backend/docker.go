package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/hal2001/kubeface/internal/apperrors"
)

// DockerConfig configures the Docker backend.
type DockerConfig struct {
	// WorkerImage is the image run per task. Its entrypoint receives the
	// task's input and output paths as arguments.
	WorkerImage string

	// Env is passed to every worker container (typically the storage
	// endpoint and credentials).
	Env map[string]string

	// ExtraHosts adds /etc/hosts entries (e.g. ["minio.test:host-gateway"]).
	ExtraHosts []string

	// DeleteInput tells the worker to delete the input object after
	// reading it.
	DeleteInput bool
}

// Docker runs each task as a one-shot container on the host daemon.
// Containers are started with auto-remove and never waited on; a worker
// that dies without writing output is only visible as a task that never
// completes.
type Docker struct {
	client *client.Client
	config DockerConfig
	logger *slog.Logger
}

// NewDocker creates a Docker backend and verifies the daemon is reachable.
func NewDocker(ctx context.Context, cfg DockerConfig) (*Docker, error) {
	if cfg.WorkerImage == "" {
		return nil, fmt.Errorf("worker image is required")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	return &Docker{
		client: dockerClient,
		config: cfg,
		logger: slog.With("component", "backend", "backend", "docker"),
	}, nil
}

// SubmitTask creates and starts a worker container, returning as soon as
// the start call is accepted.
func (b *Docker) SubmitTask(ctx context.Context, taskName, inputPath, outputPath string) (Handle, error) {
	if err := b.pullImageIfNeeded(ctx, b.config.WorkerImage); err != nil {
		return nil, apperrors.SubmissionFailed(taskName, err)
	}

	env := make([]string, 0, len(b.config.Env))
	for k, v := range b.config.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cmd := RunTaskArgs(nil, inputPath, outputPath, b.config.DeleteInput)

	containerConfig := &container.Config{
		Image: b.config.WorkerImage,
		Cmd:   cmd,
		Env:   env,
		Labels: map[string]string{
			"task.name":  taskName,
			"managed-by": "kubeface",
		},
	}
	hostConfig := &container.HostConfig{
		AutoRemove: true,
		ExtraHosts: b.config.ExtraHosts,
	}

	containerName := "kubeface-" + taskName
	resp, err := b.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, apperrors.SubmissionFailed(taskName, err)
	}
	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, apperrors.SubmissionFailed(taskName, err)
	}

	b.logger.Debug("Started worker container", "taskName", taskName, "containerId", resp.ID)
	return containerHandle(resp.ID), nil
}

func (b *Docker) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := b.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}
	reader, err := b.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Name implements Backend.
func (b *Docker) Name() string {
	return "docker"
}

// Close releases the daemon connection. Running workers are not stopped.
func (b *Docker) Close() error {
	return b.client.Close()
}

type containerHandle string

func (h containerHandle) ID() string {
	return "container:" + string(h)
}

var _ Backend = (*Docker)(nil)
