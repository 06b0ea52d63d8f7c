// Package swagger builds the HTTP API from its Swagger 2.0 description.
// Every operation in the document is bound to a handler by operationId;
// a document that does not parse, validate or fully resolve is rejected.
package swagger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Document is the subset of Swagger 2.0 the API router understands
type Document struct {
	Swagger  string              `yaml:"swagger" json:"swagger" validate:"required,eq=2.0"`
	Info     Info                `yaml:"info" json:"info"`
	BasePath string              `yaml:"basePath" json:"basePath" validate:"required,startswith=/"`
	Consumes []string            `yaml:"consumes,omitempty" json:"consumes,omitempty"`
	Produces []string            `yaml:"produces,omitempty" json:"produces,omitempty"`
	Paths    map[string]PathItem `yaml:"paths" json:"paths" validate:"required,min=1,dive,keys,startswith=/,endkeys,dive"`
}

// Info describes the API
type Info struct {
	Title       string `yaml:"title" json:"title" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version" json:"version" validate:"required"`
}

// PathItem maps lower-case HTTP methods to operations
type PathItem map[string]*Operation

// Operation is one method on a path
type Operation struct {
	OperationID string              `yaml:"operationId" json:"operationId" validate:"required"`
	Summary     string              `yaml:"summary,omitempty" json:"summary,omitempty"`
	Tags        []string            `yaml:"tags,omitempty" json:"tags,omitempty"`
	Consumes    []string            `yaml:"consumes,omitempty" json:"consumes,omitempty"`
	Parameters  []Parameter         `yaml:"parameters,omitempty" json:"parameters,omitempty" validate:"dive"`
	Responses   map[string]Response `yaml:"responses" json:"responses" validate:"required,min=1"`
}

// Parameter is an operation input
type Parameter struct {
	Name        string   `yaml:"name" json:"name" validate:"required"`
	In          string   `yaml:"in" json:"in" validate:"required,oneof=query path header formData"`
	Type        string   `yaml:"type" json:"type" validate:"required,oneof=string integer number boolean file"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Minimum     *float64 `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64 `yaml:"maximum,omitempty" json:"maximum,omitempty"`
}

// Response documents one status code
type Response struct {
	Description string `yaml:"description" json:"description" validate:"required"`
}

var (
	methods = map[string]bool{
		"get": true, "put": true, "post": true, "delete": true,
		"options": true, "head": true, "patch": true,
	}
	pathParam = regexp.MustCompile(`\{([^{}/]+)\}`)
)

// ParseFile reads and validates dir/file
func ParseFile(dir, file string) (*Document, error) {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("failed to read API description: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document and validates it. Unknown fields are
// rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse API description: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid API description: %w", err)
	}
	return &doc, nil
}

// Validate checks field constraints and the cross references between
// paths, methods, operation ids and path parameters
func (d *Document) Validate() error {
	if err := validator.New().Struct(d); err != nil {
		return err
	}

	var errs []error
	seen := make(map[string]string)
	for _, op := range d.Operations() {
		if !methods[op.Method] {
			errs = append(errs, fmt.Errorf("%s: unsupported method %q", op.Path, op.Method))
			continue
		}

		where := strings.ToUpper(op.Method) + " " + op.Path
		if prev, dup := seen[op.OperationID]; dup {
			errs = append(errs, fmt.Errorf("%s: operationId %s already used by %s", where, op.OperationID, prev))
		}
		seen[op.OperationID] = where

		if err := validateParameters(op.Path, op.Operation); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
	}
	return errors.Join(errs...)
}

func validateParameters(path string, op *Operation) error {
	declared := make(map[string]bool)
	names := make(map[string]bool)
	for _, p := range op.Parameters {
		key := p.In + ":" + p.Name
		if names[key] {
			return fmt.Errorf("duplicate parameter %s", p.Name)
		}
		names[key] = true

		if p.In == "path" {
			if !p.Required {
				return fmt.Errorf("path parameter %s must be required", p.Name)
			}
			declared[p.Name] = true
		}
		if p.Type == "file" && p.In != "formData" {
			return fmt.Errorf("file parameter %s must be in formData", p.Name)
		}
	}

	for _, m := range pathParam.FindAllStringSubmatch(path, -1) {
		if !declared[m[1]] {
			return fmt.Errorf("path parameter %s is not declared", m[1])
		}
		delete(declared, m[1])
	}
	for name := range declared {
		return fmt.Errorf("path parameter %s does not appear in the path", name)
	}
	return nil
}

// BoundOperation is an operation with its path and method
type BoundOperation struct {
	Path   string
	Method string
	*Operation
}

// Operations lists every operation ordered by path then method
func (d *Document) Operations() []BoundOperation {
	var ops []BoundOperation
	for path, item := range d.Paths {
		for method, op := range item {
			if op == nil {
				continue
			}
			ops = append(ops, BoundOperation{Path: path, Method: strings.ToLower(method), Operation: op})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}
