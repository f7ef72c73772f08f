package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/enrich"
	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/internal/triage"
	"github.com/sells-group/prospect-cli/pkg/apollo"
)

var servePort int

// triageServer serializes queue access; the queue itself is not safe for
// concurrent use.
type triageServer struct {
	mu     sync.Mutex
	queue  *triage.Queue
	store  store.Store
	apollo apollo.Client
	cache  *enrich.Cache
	userID string
	window time.Duration

	// loadQueue rebuilds the queue from the store; rescoring swaps in a
	// fresh queue so stale fit scores are never presented.
	loadQueue func(ctx context.Context) (*triage.Queue, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the triage queue and enrichment cache over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client, err := initApollo()
		if err != nil {
			return err
		}

		loc, err := triageLocation()
		if err != nil {
			return err
		}

		loadQueue := func(ctx context.Context) (*triage.Queue, error) {
			return triage.Load(ctx, st, cfg.Triage.User,
				triage.WithDailyLimit(cfg.Triage.DailyLimit),
				triage.WithLocation(loc),
			)
		}
		q, err := loadQueue(ctx)
		if err != nil {
			return err
		}

		ts := &triageServer{
			queue:     q,
			store:     st,
			apollo:    client,
			cache:     enrich.NewCache(st, enrich.NewApolloProvider(client)),
			userID:    cfg.Triage.User,
			window:    stalenessWindow(),
			loadQueue: loadQueue,
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Route("/triage", func(r chi.Router) {
			r.Get("/next", ts.handleNext)
			r.Post("/decide", ts.handleDecide)
			r.Post("/undo", ts.handleUndo)
			r.Post("/refill", ts.handleRefill)
		})
		r.Get("/enrich/{entityID}", ts.handleEnrich)
		r.Post("/rescore", ts.handleRescore)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

type nextResponse struct {
	State     triage.State     `json:"state"`
	Candidate *model.Candidate `json:"candidate,omitempty"`
	Remaining int              `json:"remaining_accepts"`
}

func (s *triageServer) handleNext(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := nextResponse{State: s.queue.State(), Remaining: s.queue.Remaining()}
	if cur, ok := s.queue.Current(); ok {
		resp.Candidate = &cur
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *triageServer) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction triage.Direction `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Direction != triage.DirectionAccept && req.Direction != triage.DirectionReject {
		writeError(w, http.StatusBadRequest, "direction must be accept or reject")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.queue.Decide(r.Context(), req.Direction)
	switch {
	case eris.Is(err, triage.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, "daily accept quota exceeded")
	case eris.Is(err, triage.ErrNoCandidate):
		writeError(w, http.StatusConflict, "no candidate presented")
	case err != nil:
		zap.L().Error("decide failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "decision not persisted")
	default:
		writeJSON(w, http.StatusOK, nextResponseOf(s.queue))
	}
}

func (s *triageServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Undo(r.Context()); err != nil {
		zap.L().Error("undo failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "undo not persisted")
		return
	}
	writeJSON(w, http.StatusOK, nextResponseOf(s.queue))
}

func (s *triageServer) handleRefill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, err := s.store.GetProfile(ctx, s.userID)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusConflict, "no profile set")
		return
	}
	if err != nil {
		zap.L().Error("load profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load profile")
		return
	}

	locations := profile.Locations
	if profile.IsNationwide {
		locations = nil
	}
	results, err := s.apollo.SearchCompanies(ctx, apollo.SearchQuery{
		Industries:     profile.Industries,
		Locations:      locations,
		EmployeeRanges: profile.CompanySizeRanges,
		PerPage:        25,
	})
	if err != nil {
		zap.L().Error("refill search failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "candidate search failed")
		return
	}

	fresh := make([]model.Candidate, 0, len(results))
	for _, res := range results {
		c := candidateFromSearch(res, s.userID)
		c.FitScore = icp.Score(c, *profile)
		fresh = append(fresh, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added, err := s.queue.Refill(ctx, fresh)
	if err != nil {
		zap.L().Error("refill failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "refill not persisted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"added": added,
		"state": s.queue.State(),
	})
}

func (s *triageServer) handleEnrich(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	cand, err := s.store.GetCandidate(r.Context(), s.userID, entityID)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown candidate")
		return
	}
	if err != nil {
		zap.L().Error("load candidate", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load candidate")
		return
	}

	res, err := s.cache.Get(r.Context(), s.userID, enrich.EntityRef{
		ID:     cand.ID,
		Kind:   enrich.KindCompany,
		Name:   cand.Name,
		Domain: cand.Domain,
	}, s.window)
	if err != nil {
		zap.L().Error("enrichment failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enrichment failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":    res.Outcome,
		"degraded":   res.Degraded,
		"source_id":  res.Record.SourceID,
		"fetched_at": res.Record.FetchedAt,
		"payload":    res.Record.Payload,
	})
}

func (s *triageServer) handleRescore(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(r.Context(), s.userID)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusConflict, "no profile set")
		return
	}
	if err != nil {
		zap.L().Error("load profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load profile")
		return
	}

	n, err := icp.NewRescorer(s.store).Run(r.Context(), s.userID, *profile)
	if eris.Is(err, model.ErrInvalidWeights) {
		writeError(w, http.StatusUnprocessableEntity, "weights must sum to 100")
		return
	}
	if err != nil {
		zap.L().Error("rescore failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rescore failed")
		return
	}

	// The new scores are on disk but the long-lived queue still holds the
	// old ordering; swap in a fresh queue so /triage/next presents the
	// rescored set.
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh, err := s.loadQueue(r.Context())
	if err != nil {
		zap.L().Error("queue reload after rescore", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "rescored but queue reload failed")
		return
	}
	s.queue = fresh
	writeJSON(w, http.StatusOK, map[string]int{"rescored": n})
}

func nextResponseOf(q *triage.Queue) nextResponse {
	resp := nextResponse{State: q.State(), Remaining: q.Remaining()}
	if cur, ok := q.Current(); ok {
		resp.Candidate = &cur
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
