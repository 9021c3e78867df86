package jobstore

import (
	"testing"

	"github.com/platerecon/platerecon/pkg/models"
)

func TestCreate_AssignsNotStartedStatus(t *testing.T) {
	store := NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")

	if job.Status != models.JobStatusNotStarted {
		t.Errorf("expected NOT_STARTED status, got %s", job.Status)
	}
	if job.ID == "" {
		t.Error("expected a generated job id")
	}
}

func TestGet_ReturnsErrNotFoundForUnknownID(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get("missing")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_MutatesAndBumpsUpdatedAt(t *testing.T) {
	store := NewMemoryStore()
	job := store.Create("https://example.com/plate.jpg", "")

	updated, err := store.Update(job.ID, func(j *models.RecognitionJob) {
		j.Status = models.JobStatusCompleted
		plate := "ABC1234"
		j.PlateNumber = &plate
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.JobStatusCompleted {
		t.Errorf("expected COMPLETED status, got %s", updated.Status)
	}
	if updated.PlateNumber == nil || *updated.PlateNumber != "ABC1234" {
		t.Errorf("expected plate number ABC1234, got %v", updated.PlateNumber)
	}
	if !updated.UpdatedAt.After(job.UpdatedAt) && updated.UpdatedAt != job.UpdatedAt {
		t.Errorf("expected UpdatedAt to advance")
	}
}

func TestList_OrdersByCreatedAtDescendingAndPaginates(t *testing.T) {
	store := NewMemoryStore()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, store.Create("https://example.com/plate.jpg", "").ID)
	}

	page, total := store.List(1, 2)
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(page) != 2 {
		t.Fatalf("expected page size 2, got %d", len(page))
	}
	if page[0].CreatedAt.Before(page[1].CreatedAt) {
		t.Errorf("expected CreatedAt descending, got %v before %v", page[0].CreatedAt, page[1].CreatedAt)
	}
}

func TestList_PageBeyondRangeReturnsEmpty(t *testing.T) {
	store := NewMemoryStore()
	store.Create("https://example.com/plate.jpg", "")

	page, total := store.List(5, 10)
	if len(page) != 0 {
		t.Errorf("expected empty page, got %v", page)
	}
	if total != 1 {
		t.Errorf("expected total 1, got %d", total)
	}
}
