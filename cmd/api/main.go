package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"printproof/internal/adapter/repo"
	"printproof/internal/broadcast"
	"printproof/internal/http/handlers"
	httpapi "printproof/internal/http/httpapi"
	"printproof/internal/infra"
	"printproof/internal/infra/credentials"
	"printproof/internal/pipeline"
	"printproof/internal/providers/convert"
	"printproof/internal/providers/engine"
	"printproof/internal/providers/enhance"
	"printproof/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open document storage")
	}

	converter, err := convert.NewClient(convert.Options{
		BaseURL: cfg.ConverterBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure converter client")
	}

	engineClient, err := engine.NewClient(engine.Options{
		BaseURL: cfg.EngineBaseURL,
		Timeout: cfg.EngineTimeout,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure comparison engine client")
	}

	enhancer, err := buildEnhancer(ctx, cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure enhancer")
	}

	hub := broadcast.NewHub(logger, cfg.SubscriberBuffer)
	jobs := repo.NewJobRepository(dbpool)

	orchestrator := pipeline.New(pipeline.Options{
		Repo:       jobs,
		Store:      store,
		Converter:  converter,
		Engine:     engineClient,
		Enhancer:   enhancer,
		Hub:        hub,
		Logger:     logger,
		RunTimeout: cfg.PipelineTimeout,
	})

	app := &handlers.App{
		Repo:         jobs,
		Store:        store,
		Hub:          hub,
		Orchestrator: orchestrator,
		Engine:       engineClient,
		SQL:          runner,
		Config:       *cfg,
		Logger:       logger,
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Let in-flight inspections persist their terminal state before exit.
	drained := make(chan struct{})
	go func() {
		orchestrator.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("inspections still running at exit")
	}

	logger.Info().Msg("server stopped")
}

// buildEnhancer assembles the optional refinement backend. Environment keys
// win; deployments that manage credentials with the enhancerkey CLI fall back
// to the integration token store.
func buildEnhancer(ctx context.Context, cfg *infra.Config, sql infra.SQLExecutor, logger infra.Logger) (pipeline.Enhancer, error) {
	ecfg := enhance.Config{
		Provider:      cfg.EnhancerProvider,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		GeminiBaseURL: cfg.GeminiBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIOrg:     cfg.OpenAIOrg,
		Logger:        &logger,
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.EnhancerProvider))
	if provider == "" {
		provider = enhance.ProviderGemini
	}

	tokens := credentials.NewStore(sql)
	tokenCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch {
	case provider == enhance.ProviderGemini && ecfg.GeminiAPIKey == "":
		key, err := tokens.GeminiAPIKey(tokenCtx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to read gemini key from token store")
		} else {
			ecfg.GeminiAPIKey = key
		}
	case provider == enhance.ProviderOpenAI && ecfg.OpenAIAPIKey == "":
		key, err := tokens.OpenAIAPIKey(tokenCtx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to read openai key from token store")
		} else {
			ecfg.OpenAIAPIKey = key
		}
	}

	refiner, err := enhance.New(ecfg)
	if err != nil {
		return nil, err
	}
	if refiner.Enabled() {
		logger.Info().Str("provider", refiner.Name()).Msg("finding enhancer enabled")
	} else {
		logger.Warn().Str("provider", provider).Msg("finding enhancer disabled: no API key configured")
	}
	return refiner, nil
}
