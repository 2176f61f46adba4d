package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mw "github.com/kiranshivaraju/scanhunter/internal/api/middleware"
	"github.com/kiranshivaraju/scanhunter/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth           *mw.Auth
	ScanRateLimit  *mw.RateLimit
	AllowedOrigins []string

	HealthHandler     http.HandlerFunc
	StartScanHandler  http.HandlerFunc
	GetScanHandler    http.HandlerFunc
	ListScansHandler  http.HandlerFunc
	GetReportHandler  http.HandlerFunc
	GetScanRunHandler http.HandlerFunc

	PutCredentialHandler    http.HandlerFunc
	ListCredentialsHandler  http.HandlerFunc
	DeleteCredentialHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.With(deps.ScanRateLimit.Limit).Post("/api/v1/scans", orNotImplemented(deps.StartScanHandler))
		r.Get("/api/v1/scans", orNotImplemented(deps.ListScansHandler))
		r.Get("/api/v1/scans/{jobID}", orNotImplemented(deps.GetScanHandler))
		r.Get("/api/v1/scans/{jobID}/report", orNotImplemented(deps.GetReportHandler))
		r.Get("/api/v1/runs/{jobID}", orNotImplemented(deps.GetScanRunHandler))

		r.Get("/api/v1/credentials", orNotImplemented(deps.ListCredentialsHandler))
		r.Put("/api/v1/credentials/{name}", orNotImplemented(deps.PutCredentialHandler))
		r.Delete("/api/v1/credentials/{name}", orNotImplemented(deps.DeleteCredentialHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
// The report route stays 501 when no archive is configured.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
