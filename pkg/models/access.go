package models

import "time"

// ReasonCode is the machine-readable explanation attached to a denial.
// The set is closed: callers switch on these values to pick a response
// status, so new codes are an API change.
type ReasonCode string

const (
	ReasonOriginMissing       ReasonCode = "origin-missing"
	ReasonOriginNotAllowed    ReasonCode = "origin-not-allowed"
	ReasonCredentialMissing   ReasonCode = "credential-missing"
	ReasonCredentialInvalid   ReasonCode = "credential-invalid"
	ReasonCredentialMalformed ReasonCode = "credential-malformed"
	ReasonSystemError         ReasonCode = "system-error"
)

// Method records how far an evaluation progressed before it terminated.
type Method string

const (
	MethodOriginOnly     Method = "origin-only"
	MethodIdentityOnly   Method = "identity-only"
	MethodDualValidation Method = "dual-validation"
	MethodSystemError    Method = "system-error"
)

// AccessRequest is one inbound evaluation request. It lives for a single
// call to the decision engine and is never persisted.
type AccessRequest struct {
	OriginAddress string
	Credential    string // empty means no credential supplied
	RequestTime   time.Time
}

// HasCredential reports whether a bearer credential was supplied.
func (r AccessRequest) HasCredential() bool {
	return r.Credential != ""
}

// IdentityAssertion is the result of a successful credential check.
// It exists only within one evaluation and is never stored.
type IdentityAssertion struct {
	SubjectID   string
	DisplayName string
}

// AccessDecision is the verdict of one evaluation. Immutable once produced.
type AccessDecision struct {
	Authorized  bool
	ReasonCode  ReasonCode // empty iff Authorized
	Method      Method
	SubjectID   string
	DisplayName string
	EvaluatedAt time.Time
}

// Denied reports whether the decision is a denial.
func (d AccessDecision) Denied() bool {
	return !d.Authorized
}

// SystemError reports whether the denial was caused by a dependency
// failure rather than the caller. Operational alerting keys on this.
func (d AccessDecision) SystemError() bool {
	return d.ReasonCode == ReasonSystemError
}
