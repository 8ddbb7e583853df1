package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/nekazari/intelligence/internal/api/middleware"
	"github.com/nekazari/intelligence/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	AnalyzeHandler http.HandlerFunc
	PredictHandler http.HandlerFunc
	GetJobHandler  http.HandlerFunc
	CancelJob      http.HandlerFunc
	WebhookHandler http.HandlerFunc
	ListPlugins    http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/intelligence/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/intelligence/analyze", orNotImplemented(deps.AnalyzeHandler))
		r.Post("/api/intelligence/predict", orNotImplemented(deps.PredictHandler))

		r.Get("/api/intelligence/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Delete("/api/intelligence/jobs/{jobID}", orNotImplemented(deps.CancelJob))

		r.Post("/api/intelligence/webhook/n8n", orNotImplemented(deps.WebhookHandler))
		r.Get("/api/intelligence/plugins", orNotImplemented(deps.ListPlugins))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/intelligence/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/intelligence/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/intelligence/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
