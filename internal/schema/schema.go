// Package schema validates API input and shapes API output. Input structs
// carry validator tags and are decoded from JSON bodies or query strings;
// output views are the JSON forms of stored records.
package schema

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/ajg/form"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "janitor/internal/errors"
)

// Schema holds the shared validator
type Schema struct {
	validate *validator.Validate
}

// New creates a Schema whose errors name fields by their json or form tag
func New() *Schema {
	v := validator.New()
	v.RegisterValidation("filename", isValidFilename)
	v.RegisterValidation("jobid", isValidJobID)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	return &Schema{validate: v}
}

// Validate checks v's validator tags. Failures are returned as a
// VALIDATION_FAILED APIError listing every field.
func (s *Schema) Validate(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]apierrors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(fields)
}

// DecodeJSON decodes the request body into dst and validates it
func (s *Schema) DecodeJSON(r *http.Request, dst interface{}) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		return apierrors.InvalidRequestWithError(err)
	}
	return s.Validate(dst)
}

// DecodeQuery decodes the query string into dst using form tags and
// validates it. Unknown parameters are ignored.
func (s *Schema) DecodeQuery(r *http.Request, dst interface{}) error {
	query := r.URL.Query()
	for key, values := range query {
		if len(values) == 1 && values[0] == "" {
			query.Del(key)
		}
	}

	dec := form.NewDecoder(strings.NewReader(query.Encode()))
	dec.IgnoreUnknownKeys(true)
	if err := dec.Decode(dst); err != nil {
		return apierrors.InvalidRequestWithError(err)
	}
	return s.Validate(dst)
}

func formatValidationError(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "filename":
		return fmt.Sprintf("%s must be a valid filename", field)
	case "jobid":
		return fmt.Sprintf("%s must be a valid job id", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func isValidFilename(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || len(name) > 255 {
		return false
	}
	return !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

// isValidJobID accepts identifiers like run_loop
func isValidJobID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > 64 {
		return false
	}
	for _, ch := range id {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			return false
		}
	}
	return true
}
