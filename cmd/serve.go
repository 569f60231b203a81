package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/conviction-cli/internal/advisor"
	"github.com/sells-group/conviction-cli/internal/analysis"
	"github.com/sells-group/conviction-cli/internal/model"
	"github.com/sells-group/conviction-cli/internal/proposal"
	"github.com/sells-group/conviction-cli/internal/store"
	"github.com/sells-group/conviction-cli/pkg/anthropic"
)

var servePort int

// server bundles the service layer behind the HTTP handlers.
type server struct {
	store     store.Store
	beliefs   *analysis.BeliefAnalysisService
	questions *analysis.IntrospectionService
	integrity *analysis.IntegrityService
	engine    *proposal.Engine
	advisor   *advisor.Advisor
}

func newServer(st store.Store, ttlDays int, adv *advisor.Advisor) *server {
	return &server{
		store:     st,
		beliefs:   analysis.NewBeliefAnalysisService(st),
		questions: analysis.NewIntrospectionService(st),
		integrity: analysis.NewIntegrityService(st),
		engine:    proposal.NewEngine(st, ttlDays),
		advisor:   adv,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var adv *advisor.Advisor
		if cfg.Anthropic.Key != "" {
			adv = advisor.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		} else {
			adv = advisor.New(nil, cfg.Anthropic.Model)
		}

		s := newServer(st, cfg.Review.ProposalTTLDays, adv)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: s.router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func (s *server) router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/review", func(r chi.Router) {
		r.Get("/questions", s.handleOpenQuestions)
		r.Get("/beliefs", s.handleAllBeliefs)
		r.Get("/beliefs/stale", s.handleStaleBeliefs)
		r.Get("/beliefs/{id}/coverage", s.handleCoverage)
		r.Get("/orphans", s.handleOrphans)
	})

	r.Get("/weekly-review", s.handleWeeklyReview)

	r.Route("/proposals", func(r chi.Router) {
		r.Get("/", s.handleProposals)
		r.Get("/history", s.handleProposalHistory)
		r.Post("/{id}/accept", s.handleProposalDecision(s.engine.Accept))
		r.Post("/{id}/reject", s.handleProposalDecision(s.engine.Reject))
	})

	r.Post("/artifacts/beliefs", s.handleCreateReasoning(false))
	r.Post("/artifacts/questions", s.handleCreateReasoning(true))
	r.Post("/beliefs/{id}/review-outcome", s.handleReviewOutcome)

	r.Route("/advisor", func(r chi.Router) {
		r.Post("/refine-belief", s.handleRefineBelief)
		r.Post("/refine-question", s.handleRefineQuestion)
		r.Post("/sub-questions", s.handleSubQuestions)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps service errors onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, analysis.ErrNotABelief):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidOutcome):
		status = http.StatusBadRequest
	case errors.Is(err, advisor.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, store.ErrImmutableViolation):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) handleOpenQuestions(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.questions.OpenQuestions(r.Context(), time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, grouped)
}

func (s *server) handleAllBeliefs(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.beliefs.AllBeliefsGrouped(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, grouped)
}

func (s *server) handleStaleBeliefs(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.beliefs.BeliefsNeedingReview(r.Context(), time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, grouped)
}

func (s *server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	report, err := s.beliefs.SnapshotCoverage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	report, err := s.integrity.Orphans(r.Context(), time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// weeklyReview is the combined review surface: one engine pass, then
// everything a sit-down review needs in one payload.
type weeklyReview struct {
	StaleBeliefs  map[string][]analysis.StaleBelief            `json:"stale_beliefs"`
	OpenQuestions map[string][]analysis.OpenQuestion           `json:"open_questions"`
	Orphans       *analysis.OrphanReport                       `json:"orphans"`
	Proposals     map[string]map[string][]proposal.DisplayItem `json:"proposals"`
}

func (s *server) buildWeeklyReview(ctx context.Context, now time.Time) (*weeklyReview, error) {
	if err := s.engine.Evaluate(ctx, now); err != nil {
		return nil, err
	}
	stale, err := s.beliefs.BeliefsNeedingReview(ctx, now)
	if err != nil {
		return nil, err
	}
	open, err := s.questions.OpenQuestions(ctx, now)
	if err != nil {
		return nil, err
	}
	orphans, err := s.integrity.Orphans(ctx, now)
	if err != nil {
		return nil, err
	}
	proposals, err := s.engine.ListForDisplay(ctx, now)
	if err != nil {
		return nil, err
	}
	return &weeklyReview{
		StaleBeliefs:  stale,
		OpenQuestions: open,
		Orphans:       orphans,
		Proposals:     proposals,
	}, nil
}

func (s *server) handleWeeklyReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.buildWeeklyReview(r.Context(), time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, review)
}

func (s *server) handleProposals(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.engine.ListForDisplay(r.Context(), time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, grouped)
}

func (s *server) handleProposalHistory(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.engine.HistoryForDisplay(r.Context(), time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, grouped)
}

func (s *server) handleProposalDecision(decide func(ctx context.Context, proposalID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := decide(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		p, err := s.store.GetProposal(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, p)
	}
}

type createReasoningRequest struct {
	Statement           string   `json:"statement"`
	ArtifactType        string   `json:"artifact_type"`
	Stance              string   `json:"stance"`
	EntityType          string   `json:"entity_type"`
	EntityID            string   `json:"entity_id"`
	SnapshotIDs         []string `json:"snapshot_ids"`
	Rationale           []string `json:"rationale"`
	Assumptions         []string `json:"assumptions"`
	Counterpoints       []string `json:"counterpoints"`
	ConfidenceLevel     string   `json:"confidence_level"`
	ConfidenceRationale string   `json:"confidence_rationale"`
}

func (s *server) handleCreateReasoning(question bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReasoningRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		artifactType := model.TypeQuestion
		if !question {
			artifactType = model.ReasoningType(req.ArtifactType)
			if artifactType != model.TypeThesis && artifactType != model.TypeRisk {
				respondJSON(w, http.StatusBadRequest, map[string]string{"error": "artifact_type must be thesis or risk"})
				return
			}
		}

		artifact, err := model.NewReasoningArtifact(
			uuid.NewString(),
			time.Now().UTC(),
			model.ActorHuman,
			artifactType,
			model.Subject{EntityType: model.SubjectEntityType(req.EntityType), EntityID: req.EntityID},
			model.References{SnapshotIDs: req.SnapshotIDs},
			model.Claim{Statement: strings.TrimSpace(req.Statement), Stance: model.Stance(req.Stance)},
			model.ReasoningDetail{Rationale: req.Rationale, Assumptions: req.Assumptions, Counterpoints: req.Counterpoints},
			model.Confidence{Level: model.ConfidenceLevel(req.ConfidenceLevel), Rationale: req.ConfidenceRationale},
			model.ReviewPointer{},
		)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		if err := s.store.SaveArtifact(r.Context(), artifact); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, artifact)
	}
}

func (s *server) handleReviewOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
		Note    string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ev, err := s.beliefs.RecordReviewOutcome(r.Context(), chi.URLParam(r, "id"), req.Outcome, req.Note, time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ev)
}

func (s *server) handleRefineBelief(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Statement       string `json:"statement"`
		ArtifactType    string `json:"artifact_type"`
		SnapshotSummary string `json:"snapshot_summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Statement) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "statement is required"})
		return
	}

	draft, err := s.advisor.DraftRefinedBelief(r.Context(), req.Statement, model.ReasoningType(req.ArtifactType), req.SnapshotSummary)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"draft": draft})
}

func (s *server) handleRefineQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question        string `json:"question"`
		SnapshotSummary string `json:"snapshot_summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	draft, err := s.advisor.DraftRefinedQuestion(r.Context(), req.Question, req.SnapshotSummary)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"draft": draft})
}

func (s *server) handleSubQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	suggestions, err := s.advisor.SuggestSubQuestions(r.Context(), req.Question)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"suggestions": suggestions})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
