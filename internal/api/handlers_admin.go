package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/org/accessgate/internal/admin"
	"github.com/org/accessgate/internal/allowlist"
	"github.com/org/accessgate/internal/engine"
	"github.com/org/accessgate/internal/storage"
)

// adminDenied writes the engine's verdict for a denied admin call.
func adminDenied(w http.ResponseWriter, err error) bool {
	var denied *admin.AccessDeniedError
	if errors.As(err, &denied) {
		writeError(w, statusForReason(denied.Decision.ReasonCode), string(denied.Decision.ReasonCode))
		return true
	}
	return false
}

// AllowlistGetHandler handles GET /v1/admin/allowlist.
func (s *Server) AllowlistGetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := engine.WithRequestID(r.Context(), requestIDFromCtx(r.Context()))
	al, err := s.admin.GetAllowlist(ctx, clientIP(r), bearerToken(r))
	if err != nil {
		if adminDenied(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"origins":    al.Origins,
		"updated_at": al.UpdatedAt,
	})
}

// AllowlistPutHandler handles PUT /v1/admin/allowlist.
func (s *Server) AllowlistPutHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Origins []string `json:"origins"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := engine.WithRequestID(r.Context(), requestIDFromCtx(r.Context()))
	updatedAt, err := s.admin.SetAllowlist(ctx, clientIP(r), bearerToken(r), req.Origins)
	if err != nil {
		if adminDenied(w, err) {
			return
		}
		var verr *allowlist.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated_at": updatedAt})
}

// AuditLogHandler handles GET /v1/admin/audit-log.
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	ctx := engine.WithRequestID(r.Context(), requestIDFromCtx(r.Context()))
	if err := s.admin.Authorize(ctx, clientIP(r), bearerToken(r)); err != nil {
		if adminDenied(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	q := r.URL.Query()
	filter := storage.AuditFilter{
		OriginAddress: q.Get("origin"),
		Result:        q.Get("result"),
		Limit:         100,
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filter.Since = &t
		}
	}

	records, err := s.auditor.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}
