package api

import (
	"context"
	"net/http"
	"time"

	"github.com/abhishinde10/healthnexus/internal/cache"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	cache   cache.Store
	timeout time.Duration
	env     string
	version string
}

func NewHealthHandler(db Pinger, store cache.Store, timeout time.Duration, env, version string) *HealthHandler {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &HealthHandler{
		db:      db,
		cache:   store,
		timeout: timeout,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readiness fails when the database is down. A down cache only degrades
// the service since every cache failure falls back to the database.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string)
	status := "ok"

	pgCtx, pgCancel := context.WithTimeout(r.Context(), h.timeout)
	err := h.db.Ping(pgCtx)
	pgCancel()
	if err != nil {
		deps["postgres"] = "down"
		status = "error"
	} else {
		deps["postgres"] = "ok"
	}

	cacheCtx, cacheCancel := context.WithTimeout(r.Context(), h.timeout)
	healthy := h.cache.HealthCheck(cacheCtx)
	cacheCancel()
	if !healthy {
		deps["cache"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	} else {
		deps["cache"] = "ok"
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
