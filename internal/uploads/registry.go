package uploads

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Destinations holds the configured upload directories. PerSet is keyed by
// set name; Default is the parent used for sets without their own entry.
type Destinations struct {
	PerSet  map[string]string
	Default string
}

// Registry holds the configured upload sets
type Registry struct {
	sets map[string]*Set
}

// Configure resolves every set's destination and returns a registry
// serving them. A set with no destination fails the whole configuration.
func Configure(dests Destinations, sets ...*Set) (*Registry, error) {
	r := &Registry{sets: make(map[string]*Set, len(sets))}
	for _, set := range sets {
		if _, dup := r.sets[set.Name]; dup {
			return nil, fmt.Errorf("duplicate upload set %s", set.Name)
		}
		if err := set.Configure(dests.PerSet[set.Name], dests.Default); err != nil {
			return nil, err
		}
		r.sets[set.Name] = set
	}
	return r, nil
}

// Set returns the named set
func (r *Registry) Set(name string) (*Set, bool) {
	set, ok := r.sets[name]
	return set, ok
}

// Names lists the configured sets
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// URL returns the public URL of a file in the named set, or "" when the set
// is unknown
func (r *Registry) URL(set, name string) string {
	s, ok := r.sets[set]
	if !ok {
		return ""
	}
	return s.URL(name)
}

// Routes serves stored files at /{set}/{filename}; mount at URLPrefix
func (r *Registry) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/{set}/{filename}", r.serve)
	router.Head("/{set}/{filename}", r.serve)
	return router
}

func (r *Registry) serve(w http.ResponseWriter, req *http.Request) {
	set, ok := r.sets[chi.URLParam(req, "set")]
	name := chi.URLParam(req, "filename")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		http.NotFound(w, req)
		return
	}

	path := set.Path(name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, req)
		return
	}
	http.ServeFile(w, req, path)
}
