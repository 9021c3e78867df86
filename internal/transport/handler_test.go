package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platerecon/platerecon/internal/config"
	"github.com/platerecon/platerecon/internal/jobstore"
	"github.com/platerecon/platerecon/internal/queue"
	"github.com/platerecon/platerecon/pkg/models"
)

type stubBlobStore struct {
	saved map[string][]byte
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{saved: map[string][]byte{}}
}

func (s *stubBlobStore) FetchImage(context.Context, string) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (s *stubBlobStore) Save(_ context.Context, filename string, data []byte) (string, error) {
	s.saved[filename] = data
	return "http://localhost/images/" + filename, nil
}

func (s *stubBlobStore) Delete(_ context.Context, filename string) (bool, error) {
	_, ok := s.saved[filename]
	delete(s.saved, filename)
	return ok, nil
}

func (s *stubBlobStore) GetURL(filename string) string {
	return "http://localhost/images/" + filename
}

func testDeps() (Dependencies, *jobstore.MemoryStore) {
	cfg := &config.Config{MaxRequestBodySize: 10 * 1024 * 1024, RequestTimeout: 5 * time.Second}
	store := jobstore.NewMemoryStore()
	return Dependencies{
		Config: cfg,
		Store:  store,
		Queue:  queue.New(8),
		Blob:   newStubBlobStore(),
	}, store
}

func pngUploadBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	return pngUploadBodyWithExpectedText(t, "")
}

func pngUploadBodyWithExpectedText(t *testing.T, expectedPlateText string) (*bytes.Buffer, string) {
	t.Helper()
	var imgBuf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	if err := png.Encode(&imgBuf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "plate.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if expectedPlateText != "" {
		if err := w.WriteField("expected_plate_text", expectedPlateText); err != nil {
			t.Fatalf("failed to write expected_plate_text field: %v", err)
		}
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func TestCreateRecognitionJob_AcceptsImageAndEnqueues(t *testing.T) {
	deps, store := testDeps()
	handler := NewHandler(deps)

	body, contentType := pngUploadBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognition", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.RecognitionJobCreatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != models.JobStatusNotStarted {
		t.Errorf("expected NOT_STARTED, got %s", resp.Status)
	}

	if _, err := store.Get(resp.RequestID); err != nil {
		t.Errorf("expected job to exist in store: %v", err)
	}

	select {
	case msg := <-deps.Queue.Receive():
		if msg.RequestID != resp.RequestID {
			t.Errorf("expected enqueued request_id %s, got %s", resp.RequestID, msg.RequestID)
		}
	default:
		t.Error("expected a message to be enqueued")
	}
}

func TestCreateRecognitionJob_RecordsOptionalExpectedPlateTextHint(t *testing.T) {
	deps, store := testDeps()
	handler := NewHandler(deps)

	body, contentType := pngUploadBodyWithExpectedText(t, "ABC1234")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognition", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.RecognitionJobCreatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	job, err := store.Get(resp.RequestID)
	if err != nil {
		t.Fatalf("expected job to exist in store: %v", err)
	}
	if job.ExpectedPlateText == nil || *job.ExpectedPlateText != "ABC1234" {
		t.Errorf("expected expected_plate_text hint ABC1234, got %v", job.ExpectedPlateText)
	}
}

func TestCreateRecognitionJob_RejectsNonImageUpload(t *testing.T) {
	deps, _ := testDeps()
	handler := NewHandler(deps)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("file", "not-an-image.txt")
	part.Write([]byte("hello world"))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognition", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetRecognitionJob_NotFoundReturns404(t *testing.T) {
	deps, _ := testDeps()
	handler := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recognition/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestReprocess_RejectsUnlessFailedOrNeedsReview(t *testing.T) {
	deps, store := testDeps()
	handler := NewHandler(deps)

	job := store.Create("http://example.com/plate.jpg", "") // NOT_STARTED

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognition/"+job.ID+"/reprocess", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for NOT_STARTED job, got %d", rec.Code)
	}
}

func TestReprocess_ResetsAndRequeuesFailedJob(t *testing.T) {
	deps, store := testDeps()
	handler := NewHandler(deps)

	job := store.Create("http://example.com/plate.jpg", "")
	errMsg := "No plate detected"
	store.Update(job.ID, func(j *models.RecognitionJob) {
		j.Status = models.JobStatusFailed
		j.ErrorMessage = &errMsg
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognition/"+job.ID+"/reprocess", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.JobStatusNotStarted {
		t.Errorf("expected NOT_STARTED after reprocess, got %s", updated.Status)
	}
	if updated.ErrorMessage != nil {
		t.Errorf("expected error_message cleared, got %v", *updated.ErrorMessage)
	}

	select {
	case msg := <-deps.Queue.Receive():
		if msg.RequestID != job.ID {
			t.Errorf("expected re-enqueued job %s, got %s", job.ID, msg.RequestID)
		}
	default:
		t.Error("expected job to be re-enqueued")
	}
}

func TestListRecognitionJobs_ValidatesPagination(t *testing.T) {
	deps, _ := testDeps()
	handler := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recognition?page_size=101", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for page_size > 100, got %d", rec.Code)
	}
}

func TestListRecognitionJobs_ReturnsPagedResults(t *testing.T) {
	deps, store := testDeps()
	handler := NewHandler(deps)

	for i := 0; i < 3; i++ {
		store.Create("http://example.com/plate.jpg", "")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recognition?page=1&page_size=2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp models.RecognitionJobListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Jobs) != 2 {
		t.Errorf("expected total=3 page of 2, got total=%d len=%d", resp.Total, len(resp.Jobs))
	}
}

func TestHealthCheck(t *testing.T) {
	deps, _ := testDeps()
	handler := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
}
