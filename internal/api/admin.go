package api

import (
	"net/http"

	"github.com/abhishinde10/healthnexus/internal/db"
)

func dbHealthHandler(admin DBAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := admin.Health(r.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func dbStatsHandler(admin DBAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := admin.CollectionStats(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tables": stats})
	}
}

func ensureIndexesHandler(admin DBAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := admin.EnsureIndexes(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func compactHandler(admin DBAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompactRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := admin.Compact(r.Context(), req.Table); err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"table": req.Table, "status": "compacted"})
	}
}

func cleanupHandler(admin DBAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CleanupRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		deleted, err := admin.Cleanup(r.Context(), req.Table, req.OlderThanDays)
		if err != nil {
			handleError(w, err)
			return
		}

		switch req.Table {
		case "appointments":
			MarkStale(r.Context(), "appointment:*", "appointments:*")
		case "services":
			MarkStale(r.Context(), "services:*")
		}
		writeJSON(w, http.StatusOK, map[string]any{"table": req.Table, "deleted": deleted})
	}
}

func purgeCacheHandler(layer *CacheLayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pattern := r.URL.Query().Get("pattern")
		if pattern == "" {
			pattern = "*"
		}
		n, err := layer.Purge(r.Context(), pattern)
		if err != nil {
			writeError(w, http.StatusBadGateway, "cache_unavailable", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pattern": pattern, "deleted": n})
	}
}

var _ DBAdmin = (*db.Optimizer)(nil)
