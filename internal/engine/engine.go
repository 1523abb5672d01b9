// Package engine implements the dual-factor access decision: an origin
// must be on the allowlist AND its bearer credential must verify with
// the identity provider before access is granted. Every evaluation
// produces exactly one decision and one audit record, on every path.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/org/accessgate/internal/allowlist"
	"github.com/org/accessgate/internal/audit"
	"github.com/org/accessgate/internal/identity"
	"github.com/org/accessgate/pkg/models"
	"github.com/rs/zerolog/log"
)

// AllowlistGetter is the minimal interface the engine needs from the
// allowlist store.
type AllowlistGetter interface {
	Get(ctx context.Context) (*models.Allowlist, error)
}

// CredentialVerifier checks a bearer credential with the identity
// provider. Failures are classified by the identity package sentinels.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (*models.IdentityAssertion, error)
}

// AuditSink accepts one record per evaluation. Must not block.
type AuditSink interface {
	Record(rec *models.AuditRecord)
}

// Engine evaluates access requests. It holds no per-request state;
// evaluations are safe to run fully in parallel.
type Engine struct {
	allowlists    AllowlistGetter
	verifier      CredentialVerifier
	auditor       AuditSink
	verifyTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithVerifyTimeout overrides the hard budget for the identity provider
// call. The engine never blocks past this, even if the verifier would.
func WithVerifyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.verifyTimeout = d
		}
	}
}

// New creates an Engine over its three collaborators.
func New(allowlists AllowlistGetter, verifier CredentialVerifier, auditor AuditSink, opts ...Option) *Engine {
	e := &Engine{
		allowlists:    allowlists,
		verifier:      verifier,
		auditor:       auditor,
		verifyTimeout: identity.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate renders the authorize/deny verdict for one request. It
// always returns a decision: dependency failures deny with
// ReasonSystemError rather than surfacing an error (fail-closed).
// The audit record is emitted before return on every path.
func (e *Engine) Evaluate(ctx context.Context, req models.AccessRequest) models.AccessDecision {
	if req.RequestTime.IsZero() {
		req.RequestTime = time.Now().UTC()
	}

	decision := e.evaluate(ctx, req)
	decision.EvaluatedAt = req.RequestTime

	rec := &models.AuditRecord{
		RequestID:     requestIDFromCtx(ctx),
		Timestamp:     req.RequestTime,
		OriginAddress: req.OriginAddress,
		SubjectID:     decision.SubjectID,
		DisplayName:   decision.DisplayName,
		Method:        decision.Method,
		Result:        models.ResultFailure,
		ReasonCode:    decision.ReasonCode,
		CredentialFP:  audit.Fingerprint(req.Credential),
	}
	if decision.Authorized {
		rec.Result = models.ResultSuccess
	}
	e.auditor.Record(rec)

	return decision
}

// evaluate walks the gates in fixed order: origin shape, allowlist
// membership, credential presence, credential verification. The order
// is load-bearing: the identity provider is never invoked for traffic
// the allowlist would reject.
func (e *Engine) evaluate(ctx context.Context, req models.AccessRequest) models.AccessDecision {
	if req.OriginAddress == "" {
		// Malformed request, not a security decision. Short-circuits
		// before any store access.
		return deny(models.ReasonOriginMissing, models.MethodOriginOnly)
	}

	al, err := e.allowlists.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("allowlist fetch failed, denying")
		return deny(models.ReasonSystemError, models.MethodSystemError)
	}
	if !al.Contains(allowlist.Canonical(req.OriginAddress)) {
		return deny(models.ReasonOriginNotAllowed, models.MethodOriginOnly)
	}

	if !req.HasCredential() {
		return deny(models.ReasonCredentialMissing, models.MethodIdentityOnly)
	}

	vctx, cancel := context.WithTimeout(ctx, e.verifyTimeout)
	defer cancel()
	assertion, err := e.verifier.Verify(vctx, req.Credential)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredential):
			return deny(models.ReasonCredentialInvalid, models.MethodIdentityOnly)
		case errors.Is(err, identity.ErrMalformedCredential):
			return deny(models.ReasonCredentialMalformed, models.MethodIdentityOnly)
		default:
			// Provider unavailable, timeout, or cancellation. A provider
			// outage must never default to allow.
			log.Error().Err(err).Msg("credential verification unavailable, denying")
			return deny(models.ReasonSystemError, models.MethodSystemError)
		}
	}

	return models.AccessDecision{
		Authorized:  true,
		Method:      models.MethodDualValidation,
		SubjectID:   assertion.SubjectID,
		DisplayName: assertion.DisplayName,
	}
}

func deny(reason models.ReasonCode, method models.Method) models.AccessDecision {
	return models.AccessDecision{ReasonCode: reason, Method: method}
}
