package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"janitor/internal/services"
	"janitor/internal/store"
	"janitor/internal/web"
)

// dashboardRuns is how many recent runs the dashboard shows
const dashboardRuns = 20

// SiteHandler serves the HTML pages
type SiteHandler struct {
	pages  *web.Renderer
	jobs   *services.JobService
	docs   *services.DocumentService
	errors *ErrorsHandler
	logger *slog.Logger
}

// NewSiteHandler creates the site handler
func NewSiteHandler(pages *web.Renderer, jobs *services.JobService, docs *services.DocumentService, errs *ErrorsHandler, logger *slog.Logger) *SiteHandler {
	return &SiteHandler{
		pages:  pages,
		jobs:   jobs,
		docs:   docs,
		errors: errs,
		logger: logger.With(slog.String("handler", "site")),
	}
}

// Routes mounts the site pages
func (h *SiteHandler) Routes(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/documents", h.Documents)
	r.Get("/documents/upload", h.UploadForm)
	r.Post("/documents/upload", h.Upload)
}

// Index renders the dashboard: registered jobs and recent runs
func (h *SiteHandler) Index(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.errors.InternalError(w, r, err)
		return
	}
	runs, err := h.jobs.ListRuns(r.Context(), "", dashboardRuns)
	if err != nil {
		h.errors.InternalError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "index", map[string]interface{}{
		"Jobs": jobs,
		"Runs": runs,
	})
}

// Documents renders the uploaded document list
func (h *SiteHandler) Documents(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.List(r.Context(), 0)
	if err != nil {
		h.errors.InternalError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "documents", map[string]interface{}{"Documents": docs})
}

// UploadForm renders the upload form
func (h *SiteHandler) UploadForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "upload", h.uploadData("", nil))
}

// Upload stores the submitted document and re-renders the form
func (h *SiteHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(UploadField)
	if err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			h.render(w, r, http.StatusRequestEntityTooLarge, "upload", h.uploadData("File too large.", nil))
		case errors.Is(err, http.ErrMissingFile):
			h.render(w, r, http.StatusBadRequest, "upload", h.uploadData("Choose a file to upload.", nil))
		default:
			h.render(w, r, http.StatusBadRequest, "upload", h.uploadData("Invalid upload.", nil))
		}
		return
	}
	defer file.Close()

	doc, err := h.docs.Upload(r.Context(), file, header.Filename)
	if errors.Is(err, services.ErrUploadNotAllowed) {
		h.render(w, r, http.StatusBadRequest, "upload", h.uploadData("File type not allowed.", nil))
		return
	}
	if err != nil {
		h.errors.InternalError(w, r, err)
		return
	}

	h.render(w, r, http.StatusCreated, "upload", h.uploadData("", doc))
}

func (h *SiteHandler) uploadData(msg string, uploaded *store.Document) map[string]interface{} {
	data := map[string]interface{}{"Accept": h.docs.Set().Accept()}
	if msg != "" {
		data["Error"] = msg
	}
	if uploaded != nil {
		data["Uploaded"] = uploaded
	}
	return data
}

func (h *SiteHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data interface{}) {
	if err := h.pages.Render(w, status, page, data); err != nil {
		h.errors.InternalError(w, r, err)
	}
}
