package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"printproof/internal/http/handlers"
	"printproof/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.CORSOrigins),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
	)

	r.Get("/healthz", app.Health)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)

	r.Get("/api/stats", app.StatsSummary)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", app.CreateJob)
		r.Get("/", app.ListJobs)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetJob)
			r.Delete("/", app.DeleteJob)
			r.Post("/start", app.StartJob)
			r.Get("/events", app.StreamJob)
			r.Patch("/findings/{findingID}", app.ClassifyFinding)
			r.Get("/report", app.JobReport)
			r.Get("/artifacts", app.JobArtifacts)
			r.Get("/documents/{role}", app.DownloadDocument)
		})
	})

	return r
}
