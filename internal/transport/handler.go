package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/platerecon/platerecon/internal/config"
	apperrors "github.com/platerecon/platerecon/internal/errors"
	"github.com/platerecon/platerecon/internal/jobstore"
	"github.com/platerecon/platerecon/internal/logger"
	"github.com/platerecon/platerecon/internal/queue"
	"github.com/platerecon/platerecon/internal/storage"
	"github.com/platerecon/platerecon/pkg/models"
)

// ErrorResponse is an alias to the shared models.ErrorResponse.
type ErrorResponse = models.ErrorResponse

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Dependencies bundles the collaborators the recognition HTTP surface is
// built over (§6's fixed /api/v1/recognition... routes).
type Dependencies struct {
	Config *config.Config
	Store  jobstore.Store
	Queue  *queue.Queue
	Blob   storage.BlobStore

	// StaticDir/StaticMountPath, when both non-empty, mount a file server
	// over Blob's saved files -- used by the http storage backend so a
	// saved upload's URL is actually reachable for the job runner's Fetch.
	StaticDir       string
	StaticMountPath string
}

// NewHandler builds the gin router for the fixed recognition surface,
// reusing the teacher's requestSizeLimiter/errorHandler middleware and
// logger.WithFields-per-handler idiom.
func NewHandler(deps Dependencies) http.Handler {
	r := gin.Default()

	r.Use(
		requestSizeLimiter(deps.Config.MaxRequestBodySize),
		errorHandler(),
	)

	if deps.StaticDir != "" && deps.StaticMountPath != "" {
		r.Static(deps.StaticMountPath, deps.StaticDir)
	}

	r.GET("/health", healthCheck)
	r.POST("/api/v1/recognition", createRecognitionJob(deps))
	r.POST("/api/v1/recognition/:id/reprocess", reprocessRecognitionJob(deps))
	r.GET("/api/v1/recognition/:id", getRecognitionJob(deps))
	r.GET("/api/v1/recognition", listRecognitionJobs(deps))
	return r
}

// createRecognitionJob accepts the multipart "file" field required by the
// fixed surface, plus an optional "expected_plate_text" field (not part of
// the fixed contract -- ignored by clients that don't send it) used to
// attach a regression-fixture hint the job runner audits OCR accuracy
// against.
func createRecognitionJob(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), deps.Config.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"ip":     c.ClientIP(),
		}).Info("processing recognition job submission")

		fileHeader, err := c.FormFile("file")
		if err != nil {
			respondError(c, http.StatusBadRequest, "missing multipart file field \"file\"", err)
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "failed to open uploaded file", err)
			return
		}
		defer file.Close()

		data := make([]byte, fileHeader.Size)
		if _, err := io.ReadFull(file, data); err != nil {
			respondError(c, http.StatusBadRequest, "failed to read uploaded file", err)
			return
		}

		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			respondError(c, http.StatusBadRequest, "uploaded file is not a decodable image", err)
			return
		}

		filename := fmt.Sprintf("%d-%s", time.Now().UnixNano(), fileHeader.Filename)
		imageURL, err := deps.Blob.Save(ctx, filename, data)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to persist uploaded image", err)
			return
		}

		expectedPlateText := c.PostForm("expected_plate_text")
		job := deps.Store.Create(imageURL, expectedPlateText)
		if !deps.Queue.Enqueue(job.ID) {
			respondError(c, http.StatusServiceUnavailable, "queue is full", errors.New("queue capacity exceeded"))
			return
		}

		logger.WithFields(logrus.Fields{
			"job_id":             job.ID,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("recognition job accepted")

		c.JSON(http.StatusAccepted, models.RecognitionJobCreatedResponse{
			RequestID: job.ID,
			Status:    job.Status,
			CreatedAt: job.CreatedAt,
		})
	}
}

func reprocessRecognitionJob(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		job, err := deps.Store.Get(id)
		if err != nil {
			respondError(c, http.StatusNotFound, "job not found", err)
			return
		}

		if job.Status != models.JobStatusFailed && job.Status != models.JobStatusNeedsReview {
			respondError(c, http.StatusBadRequest, "reprocess is only permitted from FAILED or NEEDS_REVIEW",
				fmt.Errorf("job %s is in status %s", id, job.Status))
			return
		}

		updated, err := deps.Store.Update(id, func(j *models.RecognitionJob) {
			j.Status = models.JobStatusNotStarted
			j.PlateNumber = nil
			j.ErrorMessage = nil
			j.ConfidenceScore = nil
			j.DetectionConfidence = nil
			j.OCRConfidence = nil
			j.BoundingBox = nil
			j.PlateRegion = nil
			j.NeedsReview = false
		})
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to reset job for reprocessing", err)
			return
		}

		if !deps.Queue.Enqueue(updated.ID) {
			respondError(c, http.StatusServiceUnavailable, "queue is full", errors.New("queue capacity exceeded"))
			return
		}

		logger.WithField("job_id", id).Info("recognition job requeued for reprocessing")
		c.JSON(http.StatusOK, updated)
	}
}

func getRecognitionJob(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := deps.Store.Get(c.Param("id"))
		if err != nil {
			respondError(c, http.StatusNotFound, "job not found", err)
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func listRecognitionJobs(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := parseQueryInt(c, "page", 1)
		if err != nil || page < 1 {
			respondError(c, http.StatusBadRequest, "page must be >= 1", fmt.Errorf("invalid page %q", c.Query("page")))
			return
		}

		pageSize, err := parseQueryInt(c, "page_size", defaultPageSize)
		if err != nil || pageSize < 1 || pageSize > maxPageSize {
			respondError(c, http.StatusBadRequest, "page_size must be in [1,100]",
				fmt.Errorf("invalid page_size %q", c.Query("page_size")))
			return
		}

		jobs, total := deps.Store.List(page, pageSize)
		c.JSON(http.StatusOK, models.RecognitionJobListResponse{
			Jobs:     jobs,
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		})
	}
}

func parseQueryInt(c *gin.Context, key string, defaultValue int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(raw)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "healthy"})
}

// Middleware and helper functions, unchanged from the teacher's handler.
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			ge := c.Errors.Last()
			baseErr := ge.Err
			if baseErr == nil {
				baseErr = ge
			}
			respondError(c, determineStatusCode(baseErr), "request processing failed", baseErr)
		}
	}
}

func determineStatusCode(err error) int {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("request failed")

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
