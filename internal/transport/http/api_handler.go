package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "janitor/internal/errors"
	"janitor/internal/schema"
	"janitor/internal/services"
	"janitor/internal/swagger"
)

// UploadField is the multipart field carrying an uploaded document
const UploadField = "document"

// APIHandler implements the JSON operations of the API description
type APIHandler struct {
	jobs   *services.JobService
	docs   *services.DocumentService
	health *HealthHandler
	schema *schema.Schema
	errors *apierrors.ErrorHandler
	urls   schema.URLFunc
	logger *slog.Logger
}

// NewAPIHandler creates the API handler. urls builds document download
// links.
func NewAPIHandler(
	jobs *services.JobService,
	docs *services.DocumentService,
	health *HealthHandler,
	s *schema.Schema,
	errs *apierrors.ErrorHandler,
	urls schema.URLFunc,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		jobs:   jobs,
		docs:   docs,
		health: health,
		schema: s,
		errors: errs,
		urls:   urls,
		logger: logger.With(slog.String("handler", "api")),
	}
}

// Resolver binds every operationId of the API description
func (h *APIHandler) Resolver() swagger.Resolver {
	return swagger.Resolver{
		"getHealth":      h.health.HealthCheck,
		"listRuns":       h.ListRuns,
		"getRun":         h.GetRun,
		"listJobs":       h.ListJobs,
		"triggerJob":     h.TriggerJob,
		"listDocuments":  h.ListDocuments,
		"uploadDocument": h.UploadDocument,
	}
}

// ListRuns handles GET /runs
func (h *APIHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	var q schema.ListRunsQuery
	if err := h.schema.DecodeQuery(r, &q); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	runs, err := h.jobs.ListRuns(r.Context(), q.JobID, q.Limit)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, schema.DumpRuns(runs))
}

// GetRun handles GET /runs/{run_id}
func (h *APIHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.jobs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		h.errors.HandleError(w, r, apiError(err))
		return
	}
	render.JSON(w, r, schema.DumpRun(run))
}

// ListJobs handles GET /jobs
func (h *APIHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, schema.DumpJobs(jobs))
}

// TriggerJob handles POST /jobs/{job_id}/run
func (h *APIHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	ref := schema.JobRef{ID: chi.URLParam(r, "job_id")}
	if err := h.schema.Validate(ref); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	if err := h.jobs.Trigger(r.Context(), ref.ID); err != nil {
		h.errors.HandleError(w, r, apiError(err))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"job_id": ref.ID, "status": "started"})
}

// ListDocuments handles GET /documents
func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var q schema.ListDocumentsQuery
	if err := h.schema.DecodeQuery(r, &q); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	docs, err := h.docs.List(r.Context(), q.Limit)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, schema.DumpDocuments(docs, h.urls))
}

// UploadDocument handles POST /documents (multipart field "document")
func (h *APIHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(UploadField)
	if err != nil {
		h.errors.HandleError(w, r, formError(err))
		return
	}
	defer file.Close()

	doc, err := h.docs.Upload(r.Context(), file, header.Filename)
	if errors.Is(err, services.ErrUploadNotAllowed) {
		h.errors.HandleError(w, r, apierrors.NewWithDetails(
			http.StatusBadRequest,
			apierrors.ErrUploadNotAllowed.ErrorCode,
			apierrors.ErrUploadNotAllowed.Message,
			map[string]interface{}{
				"filename": header.Filename,
				"allowed":  h.docs.Set().Extensions(),
			},
		))
		return
	}
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, schema.DumpDocument(doc, h.urls))
}

// apiError maps service errors to API errors; others pass through
func apiError(err error) error {
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		return apierrors.ErrJobNotFound
	case errors.Is(err, services.ErrJobBusy):
		return apierrors.ErrJobBusy
	case errors.Is(err, services.ErrRunNotFound):
		return apierrors.ErrRunNotFound
	case errors.Is(err, services.ErrDocumentNotFound):
		return apierrors.NotFoundError("document")
	case errors.Is(err, services.ErrUploadNotAllowed):
		return apierrors.ErrUploadNotAllowed
	case errors.Is(err, services.ErrSchedulerStopped):
		return apierrors.ErrServiceUnavailable
	}
	return err
}

// formError maps multipart parsing failures. Oversized bodies keep their
// *http.MaxBytesError so they become a 413.
func formError(err error) error {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return err
	case errors.Is(err, http.ErrMissingFile):
		return apierrors.NewValidationErrors([]apierrors.ValidationError{
			{Field: UploadField, Message: UploadField + " is required"},
		})
	case strings.Contains(err.Error(), "request body too large"):
		return apierrors.ErrPayloadTooLarge
	}
	return apierrors.InvalidRequestWithError(err)
}
