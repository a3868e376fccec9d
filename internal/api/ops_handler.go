package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/freshness/internal/api/shared"
	"github.com/phrazzld/freshness/internal/platform/metrics"
	"github.com/phrazzld/freshness/internal/task"
)

// healthTimeout bounds the database ping behind /healthz.
const healthTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueCounter reports task counts by status. task.TaskStore satisfies it.
type QueueCounter interface {
	CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error)
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// QueueResponse is the body of /queue.
type QueueResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// OpsHandler serves the operational endpoints.
type OpsHandler struct {
	db      Pinger
	queue   QueueCounter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewOpsHandler creates an OpsHandler. metrics may be nil.
func NewOpsHandler(db Pinger, queue QueueCounter, m *metrics.Metrics, l *slog.Logger) *OpsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &OpsHandler{
		db:      db,
		queue:   queue,
		metrics: m,
		logger:  l.With(slog.String("component", "ops_handler")),
	}
}

// Healthz reports 200 when the database answers a ping, 503 otherwise.
func (h *OpsHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", slog.String("error", err.Error()))
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, HealthResponse{
			Status:   "unavailable",
			Database: "unreachable",
		})
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}

// Queue returns task counts by status and refreshes the queue depth gauge.
func (h *OpsHandler) Queue(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.CountByStatus(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to count tasks", err)
		return
	}

	resp := QueueResponse{Counts: make(map[string]int, 4)}
	for _, st := range []task.TaskStatus{
		task.TaskStatusPending,
		task.TaskStatusProcessing,
		task.TaskStatusCompleted,
		task.TaskStatusFailed,
	} {
		resp.Counts[string(st)] = counts[st]
		resp.Total += counts[st]
	}
	h.metrics.SetQueueDepth(resp.Counts)

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
