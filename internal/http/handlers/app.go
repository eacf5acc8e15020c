package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"printproof/internal/broadcast"
	"printproof/internal/domain"
	"printproof/internal/infra"
	"printproof/internal/pipeline"
	"printproof/internal/providers/engine"
	"printproof/internal/storage"
)

// Starter triggers pipeline runs. Satisfied by *pipeline.Orchestrator.
type Starter interface {
	Start(ctx context.Context, jobID string) (pipeline.StartOutcome, error)
}

// App bundles the dependencies the HTTP handlers need. Fields are injected
// from main.
type App struct {
	Repo         domain.JobRepository
	Store        *storage.FileStore
	Hub          *broadcast.Hub
	Orchestrator Starter
	Engine       *engine.Client
	SQL          infra.SQLExecutor
	Config       infra.Config
	Logger       infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
