package models

import "time"

// Result values for an audit record.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// AuditRecord is one append-only entry in the access audit trail.
// It must never contain the raw credential; CredentialFP carries a
// SHA-256 fingerprint so repeated use of the same credential can be
// correlated without the value itself ever being stored.
type AuditRecord struct {
	ID            int64
	RequestID     string
	Timestamp     time.Time
	OriginAddress string
	SubjectID     string
	DisplayName   string
	Method        Method
	Result        string
	ReasonCode    ReasonCode // non-empty on every failure record
	CredentialFP  string     // empty when no credential was supplied
}
