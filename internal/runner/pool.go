// Package runner implements the Job Runner (§4.7 of SPEC_FULL.md): the
// bridge between the queue transport and the recognition orchestrator,
// adapted from the teacher's internal/analyzer.WorkerPool.
package runner

import (
	"context"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platerecon/platerecon/internal/jobstore"
	"github.com/platerecon/platerecon/internal/observer"
	"github.com/platerecon/platerecon/internal/queue"
	"github.com/platerecon/platerecon/pkg/models"
)

// ImageFetcher loads the decoded image bytes a job row points at.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (image.Image, error)
}

// Recognizer is the orchestrator capability the pool depends on. A fresh
// Recognizer is built per worker (OrchestratorFactory below) since the
// underlying OCR engine is not safe for concurrent use (§9).
type Recognizer interface {
	Process(img image.Image) models.RecognitionResult
	// CompareToExpected audits the OCR engine against a known-good plate
	// text, used only for jobs carrying a regression-fixture hint.
	CompareToExpected(img image.Image, expected string) (wordErrorRate, characterErrorRate float64, err error)
}

// OrchestratorFactory builds one Recognizer per worker goroutine.
type OrchestratorFactory func() (Recognizer, func() error)

// Config tunes the pool's concurrency and retry/timeout policy (§4.7/§5).
type Config struct {
	Workers         int
	JobTimeout      time.Duration
	QueueRetryBase  time.Duration
	QueueMaxRetries int
}

// Pool is the job runner: a consumer of the injected queue, started once,
// draining gracefully on Close -- the direct generalization of
// internal/analyzer.WorkerPool from "image-quality job" to "recognition
// job".
type Pool struct {
	cfg     Config
	queue   *queue.Queue
	store   jobstore.Store
	fetcher ImageFetcher
	factory OrchestratorFactory
	events  observer.Subject

	once   sync.Once
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	activeWorkers int64
	totalJobs     int64
	completedJobs int64
}

// New builds a Pool. cfg.Workers <= 0 defaults to runtime.NumCPU(), exactly
// like the teacher's NewWorkerPool.
func New(cfg Config, q *queue.Queue, store jobstore.Store, fetcher ImageFetcher, factory OrchestratorFactory) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueRetryBase <= 0 {
		cfg.QueueRetryBase = 5 * time.Second
	}
	if cfg.QueueMaxRetries <= 0 {
		cfg.QueueMaxRetries = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	return &Pool{
		cfg:     cfg,
		queue:   q,
		store:   store,
		fetcher: fetcher,
		factory: factory,
	}
}

// SetEvents wires a lifecycle observer subject; call before Start. Nil is
// the zero value (no-op notify) so this is optional.
func (p *Pool) SetEvents(events observer.Subject) {
	p.events = events
}

func (p *Pool) notify(ctx context.Context, event observer.RecognitionEvent) {
	if p.events != nil {
		p.events.NotifyObservers(ctx, event)
	}
}

// Start launches the worker goroutines. Idempotent.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			go p.worker(i)
		}
	})
}

func (p *Pool) worker(id int) {
	orchestrator, closeEngine := p.factory()
	defer func() {
		if closeEngine != nil {
			if err := closeEngine(); err != nil {
				logrus.WithError(err).WithField("worker", id).Warn("failed to close ocr engine")
			}
		}
	}()

	for msg := range p.queue.Receive() {
		p.wg.Add(1)
		p.processMessage(id, orchestrator, msg)
	}
}

func (p *Pool) processMessage(workerID int, orchestrator Recognizer, msg queue.Message) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("worker", workerID).WithField("panic", r).Error("recovered from panic processing job")
		}
		atomic.AddInt64(&p.completedJobs, 1)
	}()

	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)
	atomic.AddInt64(&p.totalJobs, 1)

	job, err := p.store.Get(msg.RequestID)
	if err != nil {
		logrus.WithError(err).WithField("request_id", msg.RequestID).Warn("job row not found, dropping message")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.JobTimeout)
	defer cancel()

	p.notify(ctx, observer.RecognitionEvent{
		EventType: observer.JobStarted,
		Timestamp: start,
		JobID:     job.ID,
		ImageURL:  job.ImageURL,
	})

	img, err := p.fetcher.Fetch(ctx, job.ImageURL)
	if err != nil {
		p.handleTransientFailure(msg, err)
		return
	}

	result, ok := p.runWithDeadline(ctx, orchestrator, img)
	if !ok {
		// Deadline exceeded: discard the partial result, no side effects to
		// roll back before step 8 (§5).
		p.markFailed(ctx, job.ID, job.ImageURL, start, "recognition timed out")
		return
	}

	p.auditAccuracy(job, orchestrator, img)
	p.applyResult(ctx, job.ID, job.ImageURL, start, result)
}

// auditAccuracy runs the optional regression-fixture comparison when job
// carries an expected-text hint, persisting word/character error rate
// alongside the job row. Failures are logged, never fatal to the job.
func (p *Pool) auditAccuracy(job models.RecognitionJob, orchestrator Recognizer, img image.Image) {
	if job.ExpectedPlateText == nil || *job.ExpectedPlateText == "" {
		return
	}

	wer, cer, err := orchestrator.CompareToExpected(img, *job.ExpectedPlateText)
	if err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Warn("accuracy audit against expected_plate_text failed")
		return
	}

	if _, err := p.store.Update(job.ID, func(j *models.RecognitionJob) {
		j.WordErrorRate = &wer
		j.CharacterErrorRate = &cer
	}); err != nil {
		logrus.WithError(err).WithField("job_id", job.ID).Warn("failed to persist accuracy audit results")
	}
}

// runWithDeadline runs orchestrator.Process in a goroutine and races it
// against ctx's deadline, matching §4.7's per-job context.WithTimeout wrap.
func (p *Pool) runWithDeadline(ctx context.Context, orchestrator Recognizer, img image.Image) (models.RecognitionResult, bool) {
	done := make(chan models.RecognitionResult, 1)
	go func() {
		done <- orchestrator.Process(img)
	}()

	select {
	case result := <-done:
		return result, true
	case <-ctx.Done():
		return models.RecognitionResult{}, false
	}
}

// handleTransientFailure implements §4.7's queue-layer retry policy:
// base(5s) * (retryCount+1) backoff, up to QueueMaxRetries, then FAILED.
func (p *Pool) handleTransientFailure(msg queue.Message, cause error) {
	if msg.Retries >= p.cfg.QueueMaxRetries {
		p.markFailed(context.Background(), msg.RequestID, "", time.Now(), cause.Error())
		return
	}

	delay := p.cfg.QueueRetryBase * time.Duration(msg.Retries+1)
	logrus.WithError(cause).WithField("request_id", msg.RequestID).WithField("retry", msg.Retries+1).Warn("transient failure, scheduling retry")

	go func() {
		time.Sleep(delay)
		if !p.queue.Requeue(msg) {
			p.markFailed(context.Background(), msg.RequestID, "", time.Now(), "queue full, retry dropped: "+cause.Error())
		}
	}()
}

// applyResult writes the recognition result back per §6's status table and
// notifies the final lifecycle event.
func (p *Pool) applyResult(ctx context.Context, jobID, imageURL string, start time.Time, result models.RecognitionResult) {
	var finalStatus models.JobStatus
	_, err := p.store.Update(jobID, func(job *models.RecognitionJob) {
		job.ConfidenceScore = &result.ConfidenceScore
		job.DetectionConfidence = &result.DetectionConfidence
		job.OCRConfidence = &result.OCRConfidence
		job.BoundingBox = result.BoundingBox
		job.PlateRegion = result.PlateRegion
		job.NeedsReview = result.NeedsReview

		switch {
		case result.PlateNumber != nil && result.NeedsReview:
			job.Status = models.JobStatusNeedsReview
			job.PlateNumber = result.PlateNumber
		case result.PlateNumber != nil && !result.NeedsReview:
			job.Status = models.JobStatusCompleted
			job.PlateNumber = result.PlateNumber
		default:
			job.Status = models.JobStatusFailed
			msg := "No plate detected"
			job.ErrorMessage = &msg
		}
		finalStatus = job.Status
	})
	if err != nil {
		logrus.WithError(err).WithField("job_id", jobID).Error("failed to persist recognition result")
		return
	}

	event := observer.RecognitionEvent{
		Timestamp:      time.Now(),
		JobID:          jobID,
		ImageURL:       imageURL,
		ProcessingTime: time.Since(start),
		Success:        finalStatus != models.JobStatusFailed,
	}
	switch finalStatus {
	case models.JobStatusCompleted:
		event.EventType = observer.JobCompleted
	case models.JobStatusNeedsReview:
		event.EventType = observer.JobNeedsReview
	default:
		event.EventType = observer.JobFailed
		event.ErrorMessage = "No plate detected"
	}
	p.notify(ctx, event)
}

func (p *Pool) markFailed(ctx context.Context, jobID, imageURL string, start time.Time, message string) {
	_, err := p.store.Update(jobID, func(job *models.RecognitionJob) {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &message
	})
	if err == nil {
		p.notify(ctx, observer.RecognitionEvent{
			EventType:      observer.JobFailed,
			Timestamp:      time.Now(),
			JobID:          jobID,
			ImageURL:       imageURL,
			ProcessingTime: time.Since(start),
			ErrorMessage:   message,
		})
	}
	if err != nil {
		logrus.WithError(err).WithField("job_id", jobID).Error("failed to mark job failed")
	}
}

// Close stops accepting new messages and waits for in-flight work to
// drain, mirroring WorkerPool.Close's lock discipline.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.queue.Close()
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats mirrors the teacher's WorkerPoolStats for observability parity.
type Stats struct {
	Workers       int
	ActiveWorkers int64
	TotalJobs     int64
	CompletedJobs int64
}

func (p *Pool) GetStats() Stats {
	return Stats{
		Workers:       p.cfg.Workers,
		ActiveWorkers: atomic.LoadInt64(&p.activeWorkers),
		TotalJobs:     atomic.LoadInt64(&p.totalJobs),
		CompletedJobs: atomic.LoadInt64(&p.completedJobs),
	}
}
