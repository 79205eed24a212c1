// Package server exposes the scoring pipeline over HTTP. All operation
// routes require a bearer token; the gate in front of the metered routes
// owns rate limiting and credit movement.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/credits"
	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/gate"
	"github.com/martin/jobpilot/internal/kit"
	"github.com/martin/jobpilot/internal/outreach"
	"github.com/martin/jobpilot/internal/scoring"
	"github.com/martin/jobpilot/internal/types"
)

// Extractor runs requirement extraction. Satisfied by extraction.Service.
type Extractor interface {
	Extract(ctx context.Context, jobCardID uuid.UUID) ([]types.Requirement, error)
}

// Scorer runs one evidence scan. Satisfied by scoring.Service.
type Scorer interface {
	Score(ctx context.Context, userID, jobCardID, resumeID uuid.UUID) (*scoring.Result, error)
}

// KitGenerator builds application kits. Satisfied by kit.Service.
type KitGenerator interface {
	Generate(ctx context.Context, req *kit.Request) (*kit.Result, error)
}

// OutreachGenerator builds outreach packs and manages personalization
// sources. Satisfied by outreach.Service.
type OutreachGenerator interface {
	Generate(ctx context.Context, req *outreach.Request) (*types.OutreachPack, error)
	Pack(ctx context.Context, jobCardID uuid.UUID) (*types.OutreachPack, error)
	AddSource(ctx context.Context, jobCardID uuid.UUID, sourceType types.SourceType, url, pastedText *string) (*types.PersonalizationSource, error)
}

// SprintRunner executes batch sprints. Satisfied by sprint.Service.
type SprintRunner interface {
	Run(ctx context.Context, userID, resumeID uuid.UUID, jobCardIDs []uuid.UUID) (*types.Sprint, error)
	Retry(ctx context.Context, userID, sprintID uuid.UUID) (*types.Sprint, error)
}

// Store is the read surface the handlers use directly. Satisfied by db.DB.
type Store interface {
	GetJobCard(ctx context.Context, id uuid.UUID) (*db.JobCard, error)
	SaveSnapshot(ctx context.Context, jobCardID uuid.UUID, text string, sourceURL *string) (*types.JdSnapshot, error)
	ListPersonalizationSources(ctx context.Context, jobCardID uuid.UUID) ([]types.PersonalizationSource, error)
	ListScoreHistory(ctx context.Context, jobCardID, resumeID uuid.UUID) ([]types.ScoreHistoryEntry, error)
}

// Deps bundles everything the server serves.
type Deps struct {
	Store     Store
	Extractor Extractor
	Scorer    Scorer
	Kits      KitGenerator
	Outreach  OutreachGenerator
	Sprints   SprintRunner
	Credits   *credits.Service
	Gate      *gate.Gate
	Verifier  TokenVerifier
	Log       *zap.Logger
}

// Server is the HTTP front of the pipeline.
type Server struct {
	httpServer *http.Server
	store      Store
	extractor  Extractor
	scorer     Scorer
	kits       KitGenerator
	outreach   OutreachGenerator
	sprints    SprintRunner
	credits    *credits.Service
	gate       *gate.Gate
	validate   *validator.Validate
	log        *zap.Logger
}

// New builds the server and its router.
func New(port int, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store:     deps.Store,
		extractor: deps.Extractor,
		scorer:    deps.Scorer,
		kits:      deps.Kits,
		outreach:  deps.Outreach,
		sprints:   deps.Sprints,
		credits:   deps.Credits,
		gate:      deps.Gate,
		validate:  validator.New(),
		log:       log,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.withLogging(s.Routes(deps.Verifier)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second, // scan and sprint calls wait on the model
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes assembles the router. Everything except health sits behind auth.
func (s *Server) Routes(verifier TokenVerifier) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /job-cards/{id}/snapshot", s.handleSaveSnapshot)
	api.HandleFunc("POST /job-cards/{id}/requirements/extract", s.handleExtract)
	api.HandleFunc("POST /job-cards/{id}/personalization-sources", s.handleAddSource)
	api.HandleFunc("GET /job-cards/{id}/personalization-sources", s.handleListSources)
	api.HandleFunc("GET /job-cards/{id}/score-history", s.handleScoreHistory)
	api.HandleFunc("POST /evidence/runs", s.handleScan)
	api.HandleFunc("POST /evidence/sprints", s.handleSprint)
	api.HandleFunc("POST /evidence/sprints/{id}/retry", s.handleSprintRetry)
	api.HandleFunc("POST /application-kits", s.handleKit)
	api.HandleFunc("GET /job-cards/{id}/outreach-pack", s.handleGetOutreachPack)
	api.HandleFunc("POST /outreach/packs", s.handleOutreach)
	api.HandleFunc("GET /credits/balance", s.handleCreditBalance)
	api.HandleFunc("GET /credits/ledger", s.handleCreditLedger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/", withAuth(verifier, api))
	return mux
}

// Start listens until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	s.log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// withLogging logs each request with its duration and status.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
