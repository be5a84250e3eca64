package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"airsync/internal/config"
	"airsync/internal/jobs"
	"airsync/internal/models"
	"airsync/internal/storage"
	logx "airsync/pkg/logx"
)

// JobReader is the read side of the job store.
type JobReader interface {
	GetJob(ctx context.Context, id int64) (models.Job, error)
	ListJobs(ctx context.Context, scope string, limit int) ([]models.Job, error)
}

// Trigger is the scheduler surface the API drives.
type Trigger interface {
	SyncNow(ctx context.Context, connectionID uuid.UUID) (int64, bool, error)
	ResetNow(ctx context.Context, connectionID uuid.UUID) (int64, bool, error)
	Enabled() bool
	Running() bool
	NextRun() time.Time
}

type Deps struct {
	Jobs     JobReader
	Trigger  Trigger
	Gatherer prometheus.Gatherer
}

const defaultListLimit = 50

// Handler builds the ops router. /healthz and /metrics are public; the job
// API and /debug/pprof require the token when one is set.
func Handler(token string, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handlers{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(token))
		r.Mount("/debug", middleware.Profiler())
		r.Route("/api", func(r chi.Router) {
			r.Get("/scheduler", h.scheduler)
			r.Get("/jobs", h.listJobs)
			r.Get("/jobs/{id}", h.getJob)
			r.Post("/connections/{id}/sync", h.trigger("sync"))
			r.Post("/connections/{id}/reset", h.trigger("reset"))
		})
	})
	return r
}

type handlers struct {
	deps Deps
	log  logx.Logger
}

func (h *handlers) scheduler(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	out := map[string]any{
		"enabled": h.deps.Trigger.Enabled(),
		"running": h.deps.Trigger.Running(),
	}
	if next := h.deps.Trigger.NextRun(); !next.IsZero() {
		out["next_run"] = next.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scope is required")
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	js, err := h.deps.Jobs.ListJobs(r.Context(), scope, limit)
	if err != nil {
		h.log.Warn("list jobs failed", logx.String("scope", scope), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	if js == nil {
		js = []models.Job{}
	}
	writeJSON(w, http.StatusOK, js)
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, err := h.deps.Jobs.GetJob(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case err != nil:
		h.log.Warn("get job failed", logx.Int64("job_id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "get job failed")
	default:
		writeJSON(w, http.StatusOK, j)
	}
}

func (h *handlers) trigger(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Trigger == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
			return
		}
		connID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid connection id")
			return
		}
		run := h.deps.Trigger.SyncNow
		if kind == "reset" {
			run = h.deps.Trigger.ResetNow
		}
		id, ok, err := run(r.Context(), connID)
		switch {
		case errors.Is(err, config.ErrUnknownConnection):
			writeError(w, http.StatusNotFound, "connection not found")
		case errors.Is(err, jobs.ErrMissingImage), errors.Is(err, jobs.ErrMissingConfiguration), errors.Is(err, jobs.ErrMissingCatalog):
			h.log.Warn("manual trigger rejected", logx.String("kind", kind), logx.String("connection_id", connID.String()), logx.Err(err))
			writeError(w, http.StatusUnprocessableEntity, "connection is not fully configured")
		case err != nil:
			h.log.Warn("manual trigger failed", logx.String("kind", kind), logx.String("connection_id", connID.String()), logx.Err(err))
			writeError(w, http.StatusInternalServerError, "enqueue failed")
		case !ok:
			writeError(w, http.StatusConflict, "connection already has an active job")
		default:
			writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id})
		}
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(tok)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
