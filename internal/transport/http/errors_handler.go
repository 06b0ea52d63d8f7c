package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "janitor/internal/errors"
	"janitor/internal/web"
)

// ErrorsHandler answers requests that fail outside a handler's own error
// path. Requests under the API base path get problem JSON; everything
// else gets an HTML page.
type ErrorsHandler struct {
	pages    *web.Renderer
	problems *apierrors.ErrorHandler
	apiBase  string
	logger   *slog.Logger
}

// NewErrorsHandler creates an ErrorsHandler. pages may be nil, in which
// case site errors are plain text.
func NewErrorsHandler(pages *web.Renderer, problems *apierrors.ErrorHandler, apiBase string, logger *slog.Logger) *ErrorsHandler {
	return &ErrorsHandler{
		pages:    pages,
		problems: problems,
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		logger:   logger.With(slog.String("handler", "errors")),
	}
}

// Problems returns the problem JSON writer used for API paths
func (h *ErrorsHandler) Problems() *apierrors.ErrorHandler {
	return h.problems
}

func (h *ErrorsHandler) isAPI(r *http.Request) bool {
	if h.apiBase == "" {
		return false
	}
	return r.URL.Path == h.apiBase || strings.HasPrefix(r.URL.Path, h.apiBase+"/")
}

// NotFound handles unmatched routes
func (h *ErrorsHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	if h.isAPI(r) {
		h.problems.NotFound(w, r)
		return
	}
	h.page(w, r, http.StatusNotFound, "errors/404")
}

// MethodNotAllowed handles a route matched with the wrong method
func (h *ErrorsHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if h.isAPI(r) {
		h.problems.MethodNotAllowed(w, r)
		return
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

// InternalError reports err and answers with a 500
func (h *ErrorsHandler) InternalError(w http.ResponseWriter, r *http.Request, err error) {
	if h.isAPI(r) {
		h.problems.HandleError(w, r, err)
		return
	}
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	h.problems.Report(r.Context(), err)
	h.page(w, r, http.StatusInternalServerError, "errors/500")
}

// Panic answers a recovered panic with a 500
func (h *ErrorsHandler) Panic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	if h.isAPI(r) {
		h.problems.HandlePanic(w, r, recovered)
		return
	}
	h.problems.Report(r.Context(), fmt.Errorf("panic: %v", recovered))
	h.page(w, r, http.StatusInternalServerError, "errors/500")
}

func (h *ErrorsHandler) page(w http.ResponseWriter, r *http.Request, status int, name string) {
	if h.pages != nil {
		err := h.pages.Render(w, status, name, nil)
		if err == nil {
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to render error page",
			slog.String("page", name),
			slog.String("error", err.Error()))
	}
	http.Error(w, http.StatusText(status), status)
}
