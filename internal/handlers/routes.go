package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the admission, usage, and health endpoints.
func RegisterRoutes(api huma.API, admit *AdmitHandler, usage *UsageHandler, health *HealthHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "admit",
		Method:      http.MethodPost,
		Path:        "/v1/admissions",
		Summary:     "Admit and record a unit of work",
		Description: "Checks every supplied sliding-window policy for the subject; when all have capacity the event is recorded and charged.",
		Tags:        []string{"Quota"},
	}, admit.Admit)

	huma.Register(api, huma.Operation{
		OperationID: "listUsage",
		Method:      http.MethodGet,
		Path:        "/v1/usage/{uid}",
		Summary:     "List recorded usage for a subject",
		Tags:        []string{"Quota"},
	}, usage.List)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Service health",
		Tags:        []string{"Ops"},
	}, health.Check)
}
