package swagger

import (
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "janitor/internal/errors"
)

// Resolver maps operationIds to their handlers
type Resolver map[string]http.HandlerFunc

// ErrorFunc writes a request error, usually as problem JSON
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

// Option configures an API
type Option func(*API)

// WithErrorFunc sets the writer used for parameter validation failures
func WithErrorFunc(fn ErrorFunc) Option {
	return func(a *API) {
		if fn != nil {
			a.errorFunc = fn
		}
	}
}

// WithUI toggles the browsable description page at /ui/
func WithUI(enabled bool) Option {
	return func(a *API) {
		a.ui = enabled
	}
}

// API is a validated document with every operation bound to a handler
type API struct {
	doc       *Document
	handlers  map[string]http.HandlerFunc
	errorFunc ErrorFunc
	ui        bool
}

// Load parses dir/file and binds it to resolver
func Load(dir, file string, resolver Resolver, opts ...Option) (*API, error) {
	doc, err := ParseFile(dir, file)
	if err != nil {
		return nil, err
	}
	return New(doc, resolver, opts...)
}

// New binds doc to resolver. Every operationId must resolve.
func New(doc *Document, resolver Resolver, opts ...Option) (*API, error) {
	a := &API{
		doc:      doc,
		handlers: make(map[string]http.HandlerFunc),
		ui:       true,
		errorFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			if apiErr, ok := err.(*apierrors.APIError); ok {
				apierrors.WriteError(w, apiErr)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	var missing []string
	for _, op := range doc.Operations() {
		h, ok := resolver[op.OperationID]
		if !ok || h == nil {
			missing = append(missing, op.OperationID)
			continue
		}
		a.handlers[op.OperationID] = h
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("unresolved operationId: %s", strings.Join(missing, ", "))
	}
	return a, nil
}

// Document returns the parsed description
func (a *API) Document() *Document {
	return a.doc
}

// BasePath is where Router is meant to be mounted
func (a *API) BasePath() string {
	return a.doc.BasePath
}

// Router routes every operation plus /swagger.json and /ui/
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	for _, op := range a.doc.Operations() {
		r.With(a.checkParameters(op)).Method(strings.ToUpper(op.Method), op.Path, a.handlers[op.OperationID])
	}

	r.Get("/swagger.json", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, a.doc)
	})
	if a.ui {
		r.Get("/ui", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, req.URL.Path+"/", http.StatusMovedPermanently)
		})
		r.Get("/ui/", a.serveUI)
	}
	return r
}

// checkParameters enforces declared query and path parameters before the
// handler runs
func (a *API) checkParameters(op BoundOperation) func(http.Handler) http.Handler {
	var params []Parameter
	for _, p := range op.Parameters {
		if p.In == "query" || p.In == "path" {
			params = append(params, p)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(params) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var invalid []apierrors.ValidationError
			query := r.URL.Query()
			for _, p := range params {
				var raw string
				if p.In == "path" {
					raw = chi.URLParam(r, p.Name)
				} else {
					raw = query.Get(p.Name)
				}
				if msg := checkValue(p, raw); msg != "" {
					invalid = append(invalid, apierrors.ValidationError{Field: p.Name, Message: msg})
				}
			}
			if len(invalid) > 0 {
				a.errorFunc(w, r, apierrors.NewValidationErrors(invalid))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkValue(p Parameter, raw string) string {
	if raw == "" {
		if p.Required {
			return "is required"
		}
		return ""
	}

	var n float64
	switch p.Type {
	case "integer":
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "must be an integer"
		}
		n = float64(v)
	case "number":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "must be a number"
		}
		n = v
	case "boolean":
		if _, err := strconv.ParseBool(raw); err != nil {
			return "must be a boolean"
		}
		return ""
	default:
		return ""
	}

	if p.Minimum != nil && n < *p.Minimum {
		return fmt.Sprintf("must be at least %v", *p.Minimum)
	}
	if p.Maximum != nil && n > *p.Maximum {
		return fmt.Sprintf("must be at most %v", *p.Maximum)
	}
	return ""
}

var uiPage = template.Must(template.New("ui").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({url: {{.SpecURL}}, dom_id: "#swagger-ui"});
  </script>
</body>
</html>
`))

func (a *API) serveUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	uiPage.Execute(w, struct {
		Title   string
		SpecURL string
	}{
		Title:   a.doc.Info.Title,
		SpecURL: strings.TrimSuffix(a.doc.BasePath, "/") + "/swagger.json",
	})
}
