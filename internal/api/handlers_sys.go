package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// HealthHandler handles GET /v1/sys/health.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountAuditRecords(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("health check storage probe failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
		})
		return
	}
	auditRecordsTotal.Set(float64(count))

	al, err := s.allowlist.Get(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"allowlist_set":     al.IsSet(),
		"allowlist_origins": len(al.Origins),
		"audit_records":     count,
	})
}
