// Package observer publishes recognition job lifecycle events to a set of
// subscribers, generalized from the teacher's analysis-event observer to the
// job runner's queued/processing/completed/failed/needs-review lifecycle.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RecognitionEvent represents one job-lifecycle event the job runner emits.
type RecognitionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	JobID          string                 `json:"job_id"`
	ImageURL       string                 `json:"image_url"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of recognition lifecycle event.
type EventType string

const (
	// JobQueued marks a job accepted onto the queue. Neither the HTTP
	// handler nor the job runner in this module emits it.
	JobQueued EventType = "job_queued"
	// JobStarted fires when a worker picks a job off the queue.
	JobStarted EventType = "job_started"
	// JobCompleted fires when a job reaches COMPLETED.
	JobCompleted EventType = "job_completed"
	// JobNeedsReview fires when a job reaches NEEDS_REVIEW.
	JobNeedsReview EventType = "job_needs_review"
	// JobFailed fires when a job reaches FAILED.
	JobFailed EventType = "job_failed"
)

// Observer defines the interface for event observers.
type Observer interface {
	OnEvent(ctx context.Context, event RecognitionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers.
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event RecognitionEvent)
}

// LoggingObserver logs recognition lifecycle events.
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer.
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles recognition events by logging them.
func (o *LoggingObserver) OnEvent(_ context.Context, event RecognitionEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"job_id":          event.JobID,
		"image_url":       event.ImageURL,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}

	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}

	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case JobQueued:
		o.logger.WithFields(fields).Debug("recognition job queued")
	case JobStarted:
		o.logger.WithFields(fields).Info("recognition job started")
	case JobCompleted:
		o.logger.WithFields(fields).Info("recognition job completed")
	case JobNeedsReview:
		o.logger.WithFields(fields).Warn("recognition job needs review")
	case JobFailed:
		o.logger.WithFields(fields).Error("recognition job failed")
	default:
		o.logger.WithFields(fields).Info("recognition event occurred")
	}
}

// GetObserverName returns the observer name.
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from recognition events.
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalJobs           int64
	completedJobs       int64
	needsReviewJobs     int64
	failedJobs          int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer.
func NewMetricsObserver() Observer {
	return &MetricsObserver{}
}

// OnEvent handles recognition events by collecting metrics.
func (o *MetricsObserver) OnEvent(_ context.Context, event RecognitionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case JobStarted:
		o.totalJobs++
	case JobCompleted:
		o.completedJobs++
		o.totalProcessingTime += event.ProcessingTime
	case JobNeedsReview:
		o.needsReviewJobs++
		o.totalProcessingTime += event.ProcessingTime
	case JobFailed:
		o.failedJobs++
	}
}

// GetObserverName returns the observer name.
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics.
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	settled := o.completedJobs + o.needsReviewJobs
	avgProcessingTime := time.Duration(0)
	if settled > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(settled)
	}

	return map[string]interface{}{
		"total_jobs":            o.totalJobs,
		"completed_jobs":        o.completedJobs,
		"needs_review_jobs":     o.needsReviewJobs,
		"failed_jobs":           o.failedJobs,
		"avg_processing_time":   avgProcessingTime,
	}
}

// EventPublisher implements the Subject interface.
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher() Subject {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer.
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer.
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event, concurrently and
// isolated from a panicking observer.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event RecognitionEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}
