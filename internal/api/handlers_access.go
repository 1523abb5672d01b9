package api

import (
	"net/http"

	"github.com/org/accessgate/internal/engine"
	"github.com/org/accessgate/pkg/models"
)

// statusForReason maps a denial reason code to the caller-visible
// HTTP status.
func statusForReason(reason models.ReasonCode) int {
	switch reason {
	case models.ReasonOriginMissing:
		return http.StatusBadRequest
	case models.ReasonOriginNotAllowed:
		return http.StatusForbidden
	case models.ReasonCredentialMissing, models.ReasonCredentialInvalid, models.ReasonCredentialMalformed:
		return http.StatusUnauthorized
	case models.ReasonSystemError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

type evaluateRequest struct {
	OriginAddress string `json:"origin_address,omitempty"`
	Credential    string `json:"credential,omitempty"`
}

type evaluateResponse struct {
	Authorized  bool   `json:"authorized"`
	ReasonCode  string `json:"reason_code,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// EvaluateHandler handles POST /v1/access/evaluate. The origin defaults
// to the connection's client IP and the credential to the Authorization
// bearer token; a JSON body can override both, for callers (the display
// proxy) evaluating on behalf of an end user.
func (s *Server) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	req := evaluateRequest{
		OriginAddress: clientIP(r),
		Credential:    bearerToken(r),
	}
	if r.Body != nil && r.ContentLength != 0 {
		var body evaluateRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.OriginAddress != "" {
			req.OriginAddress = body.OriginAddress
		}
		if body.Credential != "" {
			req.Credential = body.Credential
		}
	}

	ctx := engine.WithRequestID(r.Context(), requestIDFromCtx(r.Context()))
	decision := s.engine.Evaluate(ctx, models.AccessRequest{
		OriginAddress: req.OriginAddress,
		Credential:    req.Credential,
	})
	observeDecision(decision)

	resp := evaluateResponse{
		Authorized:  decision.Authorized,
		ReasonCode:  string(decision.ReasonCode),
		SubjectID:   decision.SubjectID,
		DisplayName: decision.DisplayName,
	}
	if decision.Authorized {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, statusForReason(decision.ReasonCode), resp)
}
