// Package web renders the server-side HTML pages and provides the template
// helpers (timestamps, UI framework assets) bound to the application.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed templates
var templateFS embed.FS

// ErrNotParsed is returned by Render before Parse has succeeded
var ErrNotParsed = errors.New("templates not parsed")

// Renderer holds the parsed page templates. Helpers are added with
// AddFuncs while extensions are bound; Parse then compiles every page
// against the base layout.
type Renderer struct {
	mu     sync.RWMutex
	funcs  template.FuncMap
	pages  map[string]*template.Template
	parsed bool
}

// NewRenderer creates a Renderer with fallback helpers so pages parse even
// when an extension is not bound
func NewRenderer() *Renderer {
	return &Renderer{
		funcs: template.FuncMap{
			"moment":        NewMoment().Wrap,
			"bootstrap_css": func() template.HTML { return "" },
			"bootstrap_js":  func() template.HTML { return "" },
			"api_base":      func() string { return "/api/v1" },
			"upload_url": func(set, name string) string {
				return "/_uploads/" + set + "/" + name
			},
		},
		pages: make(map[string]*template.Template),
	}
}

// AddFuncs registers template helpers, replacing same-named ones
func (r *Renderer) AddFuncs(funcs template.FuncMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.parsed {
		return errors.New("cannot add template helpers after parsing")
	}
	for name, fn := range funcs {
		r.funcs[name] = fn
	}
	return nil
}

// Parse compiles every embedded page. Page names are paths relative to the
// templates directory without the extension, e.g. "index" or "errors/404".
func (r *Renderer) Parse() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, err := template.New("base.html").Funcs(r.funcs).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return fmt.Errorf("failed to parse base layout: %w", err)
	}

	pages := make(map[string]*template.Template)
	err = fs.WalkDir(templateFS, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Base(p) == "base.html" || !strings.HasSuffix(p, ".html") {
			return err
		}

		page, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := page.ParseFS(templateFS, p); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}

		name := strings.TrimSuffix(strings.TrimPrefix(p, "templates/"), ".html")
		pages[name] = page
		return nil
	})
	if err != nil {
		return err
	}

	r.pages = pages
	r.parsed = true
	return nil
}

// Pages lists the parsed page names
func (r *Renderer) Pages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.pages))
	for name := range r.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes page name and writes it with status. Nothing is written
// when execution fails.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	r.mu.RLock()
	page, ok := r.pages[name]
	parsed := r.parsed
	r.mu.RUnlock()

	if !parsed {
		return ErrNotParsed
	}
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
