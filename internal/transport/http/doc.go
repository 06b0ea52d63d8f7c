// Package http implements the HTTP handlers of the janitor web service.
// Handlers are a thin layer over the services package: they decode and
// validate input, call a service and render the result.
//
// # Surfaces
//
//	SiteHandler    - HTML dashboard, document list and upload form
//	APIHandler     - JSON operations bound by operationId from the API
//	                 description (see Resolver)
//	HealthHandler  - GET /api/v1/health
//	ErrorsHandler  - 404, 405, 500 and panics: HTML pages for the site,
//	                 RFC 7807 problem JSON under the API base path
//
// # Error Handling
//
// Service errors are mapped to API errors by apiError and written through
// errors.ErrorHandler:
//
//	{
//	    "type": "/errors/job/already-running",
//	    "title": "Conflict",
//	    "status": 409,
//	    "detail": "Job is already running",
//	    "instance": "/api/v1/jobs/run_loop/run"
//	}
package http
