// Package container wires the recognition service's dependency graph:
// config, storage backend, job store, queue, job runner pool and the HTTP
// handler -- the direct generalization of the teacher's Container from a
// single analyzer/fetcher pair to the full recognition pipeline.
package container

import (
	"fmt"

	"github.com/platerecon/platerecon/internal/config"
	"github.com/platerecon/platerecon/internal/factory"
	"github.com/platerecon/platerecon/internal/jobstore"
	"github.com/platerecon/platerecon/internal/logger"
	"github.com/platerecon/platerecon/internal/observer"
	"github.com/platerecon/platerecon/internal/queue"
	"github.com/platerecon/platerecon/internal/runner"
	"github.com/platerecon/platerecon/internal/storage"
	"github.com/platerecon/platerecon/internal/transport"
)

// queueCapacity is the buffered channel size behind internal/queue,
// independent of the retry budget -- mirrors the teacher's WorkerPool job
// channel sizing (a fixed multiple of expected concurrency, not of retries).
const queueCapacity = 256

const (
	localStorageDir       = "./data/images"
	localStorageMountPath = "/images"
)

// Container holds every wired dependency the api/worker binaries need.
type Container struct {
	Config  *config.Config
	Blob    storage.BlobStore
	Store   jobstore.Store
	Queue   *queue.Queue
	Events  observer.Subject
	Pool    *runner.Pool
	Handler transport.Dependencies
}

// New builds a Container from the process environment.
func New() (*Container, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	localBaseURL := fmt.Sprintf("http://%s%s", cfg.ServerAddress(), localStorageMountPath)
	blob, err := factory.CreateStorage(cfg, localStorageDir, localBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	store := jobstore.NewMemoryStore()
	q := queue.New(queueCapacity)

	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))

	pool := runner.New(runner.Config{
		JobTimeout:      cfg.JobTimeout,
		QueueRetryBase:  cfg.QueueRetryBase,
		QueueMaxRetries: cfg.QueueMaxRetries,
	}, q, store, storage.NewRunnerFetcher(blob), factory.NewOrchestratorFactory(cfg))
	pool.SetEvents(events)

	handlerDeps := transport.Dependencies{
		Config: cfg,
		Store:  store,
		Queue:  q,
		Blob:   blob,
	}
	if cfg.StorageBackend == "http" || cfg.StorageBackend == "" {
		handlerDeps.StaticDir = localStorageDir
		handlerDeps.StaticMountPath = localStorageMountPath
	}

	return &Container{
		Config:  cfg,
		Blob:    blob,
		Store:   store,
		Queue:   q,
		Events:  events,
		Pool:    pool,
		Handler: handlerDeps,
	}, nil
}
