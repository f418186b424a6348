// Package config provides configuration loading from environment variables.
package config

import (
	"strings"
	"time"

	"github.com/hal2001/kubeface/internal/storage"
)

// JobConfig holds configuration for running a batch job.
type JobConfig struct {
	MaxSimultaneousTasks int
	StoragePrefix        string        // e.g. s3://bucket/jobs
	CacheKey             string        // empty means generate a fresh one
	NumTasks             int           // expected task count, 0 when unknown
	Cleanup              bool          // delete result objects after retrieval
	PollInterval         time.Duration // delay between completion polls
	MetricsPort          string
}

// LoadJobConfig loads job configuration from environment variables.
func LoadJobConfig() *JobConfig {
	return &JobConfig{
		MaxSimultaneousTasks: GetIntEnv("KUBEFACE_MAX_SIMULTANEOUS_TASKS", 10),
		StoragePrefix:        GetEnv("KUBEFACE_STORAGE_PREFIX", ""),
		CacheKey:             GetEnv("KUBEFACE_CACHE_KEY", ""),
		NumTasks:             GetIntEnv("KUBEFACE_NUM_TASKS", 0),
		Cleanup:              GetBoolEnv("KUBEFACE_CLEANUP", true),
		PollInterval:         GetDurationEnv("KUBEFACE_POLL_INTERVAL", 5*time.Second),
		MetricsPort:          GetEnv("METRICS_PORT", "9090"),
	}
}

// StorageConfig holds object-store connection and retry settings.
type StorageConfig struct {
	Driver      string // "minio" or "memory"
	Endpoint    string
	Region      string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	MaxRetries  int
	BackoffBase float64
}

// LoadStorageConfig loads storage configuration from environment variables.
// The secret key may come from a secrets file (STORAGE_SECRET_KEY_FILE)
// instead of the environment.
func LoadStorageConfig() *StorageConfig {
	secretKey := GetSecretFile(GetEnv("STORAGE_SECRET_KEY_FILE", ""))
	if secretKey == "" {
		secretKey = GetEnv("STORAGE_SECRET_KEY", "")
	}
	return &StorageConfig{
		Driver:      GetEnv("STORAGE_DRIVER", "minio"),
		Endpoint:    GetEnv("STORAGE_ENDPOINT", "localhost:9000"),
		Region:      GetEnv("STORAGE_REGION", ""),
		AccessKey:   GetEnv("STORAGE_ACCESS_KEY", ""),
		SecretKey:   secretKey,
		UseSSL:      GetBoolEnv("STORAGE_USE_SSL", true),
		MaxRetries:  GetIntEnv("STORAGE_MAX_RETRIES", storage.DefaultMaxRetries),
		BackoffBase: GetFloatEnv("STORAGE_BACKOFF_BASE", storage.DefaultBackoffBase),
	}
}

// BackendConfig selects and configures the task execution backend.
type BackendConfig struct {
	Kind          string // "local" or "docker"
	WorkerCommand []string
	WorkerImage   string
	DeleteInput   bool
	ExtraHosts    []string
}

// LoadBackendConfig loads backend configuration from environment variables.
func LoadBackendConfig() *BackendConfig {
	return &BackendConfig{
		Kind:          GetEnv("KUBEFACE_BACKEND", "local"),
		WorkerCommand: splitList(GetEnv("KUBEFACE_WORKER_COMMAND", "")),
		WorkerImage:   GetEnv("KUBEFACE_WORKER_IMAGE", "kubeface-worker:latest"),
		DeleteInput:   GetBoolEnv("KUBEFACE_DELETE_INPUT", false),
		ExtraHosts:    splitList(GetEnv("KUBEFACE_EXTRA_HOSTS", "")),
	}
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Fields(value)
	if len(parts) == 0 {
		return nil
	}
	return parts
}
