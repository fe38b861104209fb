package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veritaslabs/veritas/internal/api/handlers"
	mw "github.com/veritaslabs/veritas/internal/api/middleware"
	"github.com/veritaslabs/veritas/internal/buildconfig"
	"github.com/veritaslabs/veritas/internal/config"
	"github.com/veritaslabs/veritas/internal/domain"
	"github.com/veritaslabs/veritas/internal/service"
	"github.com/veritaslabs/veritas/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Scheduler    *service.EpochScheduler
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	tenantStore := store.NewTenantStore(db)
	agentStore := store.NewAgentStore(db)
	beliefStore := store.NewBeliefStore(db)
	submissionStore := store.NewSubmissionStore(db)
	positionStore := store.NewPositionStore(db)
	redistributionStore := store.NewRedistributionStore(db)
	epochStore := store.NewEpochStateStore(db)

	// Pipeline services
	weightSvc := service.NewWeightService(agentStore, logger)
	aggregationSvc := service.NewAggregationService(submissionStore, logger)
	decompositionSvc := service.NewDecompositionService(submissionStore, logger)
	mirrorSvc := service.NewMirrorDescentService(submissionStore, logger)
	learningSvc := service.NewLearningService(beliefStore, submissionStore, logger)
	btsSvc := service.NewBTSService(logger)
	redistributionSvc := service.NewRedistributionService(positionStore, redistributionStore, logger)

	epochSvc := service.NewEpochService(
		beliefStore, submissionStore, epochStore,
		weightSvc, aggregationSvc, decompositionSvc, mirrorSvc, learningSvc, btsSvc, redistributionSvc,
		logger,
	)
	epochSvc.SetWorkers(config.EpochWorkers())

	scheduler := service.NewEpochScheduler(epochSvc, logger)
	if spec := config.EpochCron(); spec != "" {
		scheduler.SetCronSpec(spec)
	} else {
		scheduler.SetInterval(config.EpochInterval())
	}

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantStore)
	agentHandler := handlers.NewAgentHandler(agentStore)
	beliefHandler := handlers.NewBeliefHandler(beliefStore, agentStore, submissionStore, positionStore, epochStore)
	pipelineHandler := handlers.NewPipelineHandler(weightSvc, aggregationSvc, decompositionSvc, mirrorSvc, learningSvc, btsSvc, redistributionSvc)
	epochHandler := handlers.NewEpochHandler(epochSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Scheduler: scheduler,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	// Tenant creation (no auth — bootstrap endpoint)
	r.Post("/v1/tenants", tenantHandler.Create)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(tenantStore))

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Create)
			r.Get("/{id}", agentHandler.GetByID)
		})

		r.Route("/beliefs", func(r chi.Router) {
			r.Post("/", beliefHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", beliefHandler.GetByID)
				r.Get("/consensus", beliefHandler.Consensus)
				r.Post("/submissions", beliefHandler.CreateSubmission)
				r.Post("/positions", beliefHandler.CreatePosition)

				// Pipeline stages
				r.Post("/weights", pipelineHandler.CalculateWeights)
				r.Post("/aggregate", pipelineHandler.Aggregate)
				r.Post("/decompose", pipelineHandler.Decompose)
				r.Post("/mirror-descent", pipelineHandler.MirrorDescent)
				r.Post("/learning", pipelineHandler.LearningAssessment)
				r.Post("/bts", pipelineHandler.BTSScore)
				r.Post("/redistribute", pipelineHandler.Redistribute)
			})
		})

		r.Post("/epochs/process", epochHandler.Process)
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy the domain interfaces at compile time.
var (
	_ domain.TenantStore         = (*store.TenantStore)(nil)
	_ domain.AgentStore          = (*store.AgentStore)(nil)
	_ domain.BeliefStore         = (*store.BeliefStore)(nil)
	_ domain.SubmissionStore     = (*store.SubmissionStore)(nil)
	_ domain.PositionStore       = (*store.PositionStore)(nil)
	_ domain.RedistributionStore = (*store.RedistributionStore)(nil)
	_ domain.EpochStateStore     = (*store.EpochStateStore)(nil)
)
