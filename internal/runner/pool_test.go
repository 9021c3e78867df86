package runner

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/platerecon/platerecon/internal/jobstore"
	"github.com/platerecon/platerecon/internal/queue"
	"github.com/platerecon/platerecon/pkg/models"
)

type fakeFetcher struct {
	img image.Image
	err error
}

func (f fakeFetcher) Fetch(context.Context, string) (image.Image, error) {
	return f.img, f.err
}

type fakeRecognizer struct {
	result models.RecognitionResult
	delay  time.Duration
}

func (f fakeRecognizer) Process(image.Image) models.RecognitionResult {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result
}

func (f fakeRecognizer) CompareToExpected(image.Image, string) (float64, float64, error) {
	return 0.25, 0.1, nil
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.Set(5, 5, color.RGBA{R: 1, G: 1, B: 1, A: 255})
	return img
}

func waitForStatus(t *testing.T, store jobstore.Store, id string, want models.JobStatus) models.RecognitionJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job %s to reach status %s", id, want)
	return models.RecognitionJob{}
}

func TestPool_CompletedJobWhenPlateFoundAndNotNeedsReview(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")
	q := queue.New(4)

	plate := "ABC1234"
	factory := func() (Recognizer, func() error) {
		return fakeRecognizer{result: models.RecognitionResult{PlateNumber: &plate, NeedsReview: false}}, nil
	}
	pool := New(Config{Workers: 1}, q, store, fakeFetcher{img: testImage()}, factory)
	pool.Start()
	defer pool.Close()

	q.Enqueue(job.ID)

	updated := waitForStatus(t, store, job.ID, models.JobStatusCompleted)
	if updated.PlateNumber == nil || *updated.PlateNumber != "ABC1234" {
		t.Errorf("expected plate ABC1234, got %v", updated.PlateNumber)
	}
}

func TestPool_AuditsAccuracyWhenJobCarriesExpectedPlateTextHint(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "ABC1234")
	q := queue.New(4)

	plate := "ABC1234"
	factory := func() (Recognizer, func() error) {
		return fakeRecognizer{result: models.RecognitionResult{PlateNumber: &plate, NeedsReview: false}}, nil
	}
	pool := New(Config{Workers: 1}, q, store, fakeFetcher{img: testImage()}, factory)
	pool.Start()
	defer pool.Close()

	q.Enqueue(job.ID)

	updated := waitForStatus(t, store, job.ID, models.JobStatusCompleted)
	if updated.WordErrorRate == nil || *updated.WordErrorRate != 0.25 {
		t.Errorf("expected word_error_rate 0.25, got %v", updated.WordErrorRate)
	}
	if updated.CharacterErrorRate == nil || *updated.CharacterErrorRate != 0.1 {
		t.Errorf("expected character_error_rate 0.1, got %v", updated.CharacterErrorRate)
	}
}

func TestPool_SkipsAccuracyAuditWhenNoExpectedPlateTextHint(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")
	q := queue.New(4)

	plate := "ABC1234"
	factory := func() (Recognizer, func() error) {
		return fakeRecognizer{result: models.RecognitionResult{PlateNumber: &plate, NeedsReview: false}}, nil
	}
	pool := New(Config{Workers: 1}, q, store, fakeFetcher{img: testImage()}, factory)
	pool.Start()
	defer pool.Close()

	q.Enqueue(job.ID)

	updated := waitForStatus(t, store, job.ID, models.JobStatusCompleted)
	if updated.WordErrorRate != nil || updated.CharacterErrorRate != nil {
		t.Errorf("expected no audit results without a hint, got wer=%v cer=%v", updated.WordErrorRate, updated.CharacterErrorRate)
	}
}

func TestPool_NeedsReviewJobWhenPlateFoundButFlagged(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")
	q := queue.New(4)

	plate := "ABC1234"
	factory := func() (Recognizer, func() error) {
		return fakeRecognizer{result: models.RecognitionResult{PlateNumber: &plate, NeedsReview: true}}, nil
	}
	pool := New(Config{Workers: 1}, q, store, fakeFetcher{img: testImage()}, factory)
	pool.Start()
	defer pool.Close()

	q.Enqueue(job.ID)
	waitForStatus(t, store, job.ID, models.JobStatusNeedsReview)
}

func TestPool_FailedJobWhenNoPlateDetected(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")
	q := queue.New(4)

	factory := func() (Recognizer, func() error) {
		return fakeRecognizer{result: models.RecognitionResult{PlateNumber: nil}}, nil
	}
	pool := New(Config{Workers: 1}, q, store, fakeFetcher{img: testImage()}, factory)
	pool.Start()
	defer pool.Close()

	q.Enqueue(job.ID)
	updated := waitForStatus(t, store, job.ID, models.JobStatusFailed)
	if updated.ErrorMessage == nil || *updated.ErrorMessage != "No plate detected" {
		t.Errorf("expected 'No plate detected' error message, got %v", updated.ErrorMessage)
	}
}

func TestPool_FetchFailureExhaustsRetriesThenFails(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")
	q := queue.New(8)

	factory := func() (Recognizer, func() error) {
		return fakeRecognizer{result: models.RecognitionResult{}}, nil
	}
	pool := New(Config{Workers: 1, QueueRetryBase: 5 * time.Millisecond, QueueMaxRetries: 1},
		q, store, fakeFetcher{err: errors.New("fetch failed")}, factory)
	pool.Start()
	defer pool.Close()

	q.Enqueue(job.ID)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		updated, err := store.Get(job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Status == models.JobStatusFailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected job to eventually be marked FAILED after exhausting retries")
}

func TestPool_JobTimeoutMarksFailed(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")
	q := queue.New(4)

	factory := func() (Recognizer, func() error) {
		return fakeRecognizer{result: models.RecognitionResult{}, delay: 100 * time.Millisecond}, nil
	}
	pool := New(Config{Workers: 1, JobTimeout: 10 * time.Millisecond}, q, store, fakeFetcher{img: testImage()}, factory)
	pool.Start()
	defer pool.Close()

	q.Enqueue(job.ID)
	updated := waitForStatus(t, store, job.ID, models.JobStatusFailed)
	if updated.ErrorMessage == nil || *updated.ErrorMessage != "recognition timed out" {
		t.Errorf("expected timeout error message, got %v", updated.ErrorMessage)
	}
}
