package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/org/accessgate/internal/identity"
	"github.com/org/accessgate/pkg/models"
)

// --- fakes ---

type fakeAllowlist struct {
	origins []string
	err     error
	calls   int
}

func (f *fakeAllowlist) Get(_ context.Context) (*models.Allowlist, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	al := &models.Allowlist{Scope: models.ScopeGlobal, Origins: f.origins}
	if len(f.origins) > 0 {
		al.UpdatedAt = time.Now()
	}
	return al, nil
}

type fakeVerifier struct {
	assertion *models.IdentityAssertion
	err       error
	block     bool // wait for ctx cancellation instead of answering
	calls     int
}

func (f *fakeVerifier) Verify(ctx context.Context, _ string) (*models.IdentityAssertion, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.assertion, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []*models.AuditRecord
}

func (f *fakeAudit) Record(rec *models.AuditRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeAudit) last(t *testing.T) *models.AuditRecord {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		t.Fatal("no audit record emitted")
	}
	return f.records[len(f.records)-1]
}

const (
	allowedOrigin = "203.0.113.5"
	otherOrigin   = "198.51.100.9"
	credential    = "fgt_valid-credential-value"
)

func newTestEngine(al *fakeAllowlist, v *fakeVerifier, a *fakeAudit, opts ...Option) *Engine {
	return New(al, v, a, opts...)
}

func req(origin, cred string) models.AccessRequest {
	return models.AccessRequest{OriginAddress: origin, Credential: cred}
}

// --- scenarios ---

func TestAuthorizedWithDualValidation(t *testing.T) {
	verifier := &fakeVerifier{assertion: &models.IdentityAssertion{SubjectID: "subj-1", DisplayName: "Alex"}}
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, auditor)

	d := eng.Evaluate(context.Background(), req(allowedOrigin, credential))

	if !d.Authorized {
		t.Fatalf("expected authorized, got denial %q", d.ReasonCode)
	}
	if d.ReasonCode != "" {
		t.Errorf("authorized decision should carry no reason code, got %q", d.ReasonCode)
	}
	if d.SubjectID != "subj-1" || d.DisplayName != "Alex" {
		t.Errorf("identity not propagated: %+v", d)
	}
	rec := auditor.last(t)
	if rec.Result != models.ResultSuccess {
		t.Errorf("audit result = %q, want success", rec.Result)
	}
	if rec.Method != models.MethodDualValidation {
		t.Errorf("audit method = %q, want dual-validation", rec.Method)
	}
	if rec.SubjectID != "subj-1" {
		t.Errorf("audit subject = %q, want subj-1", rec.SubjectID)
	}
}

func TestOriginNotAllowedSkipsVerifier(t *testing.T) {
	verifier := &fakeVerifier{assertion: &models.IdentityAssertion{SubjectID: "subj-1"}}
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, auditor)

	d := eng.Evaluate(context.Background(), req(otherOrigin, credential))

	if d.Authorized {
		t.Fatal("expected denial")
	}
	if d.ReasonCode != models.ReasonOriginNotAllowed {
		t.Errorf("reason = %q, want origin-not-allowed", d.ReasonCode)
	}
	if verifier.calls != 0 {
		t.Errorf("verifier called %d times for a rejected origin, want 0", verifier.calls)
	}
	rec := auditor.last(t)
	if rec.Method != models.MethodOriginOnly || rec.Result != models.ResultFailure {
		t.Errorf("audit = method %q result %q", rec.Method, rec.Result)
	}
}

func TestCredentialMissing(t *testing.T) {
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, &fakeVerifier{}, auditor)

	d := eng.Evaluate(context.Background(), req(allowedOrigin, ""))

	if d.Authorized || d.ReasonCode != models.ReasonCredentialMissing {
		t.Fatalf("got %+v, want credential-missing denial", d)
	}
	if rec := auditor.last(t); rec.CredentialFP != "" {
		t.Errorf("no credential supplied but fingerprint %q recorded", rec.CredentialFP)
	}
}

func TestCredentialInvalid(t *testing.T) {
	verifier := &fakeVerifier{err: identity.ErrInvalidCredential}
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, auditor)

	d := eng.Evaluate(context.Background(), req(allowedOrigin, credential))

	if d.Authorized || d.ReasonCode != models.ReasonCredentialInvalid {
		t.Fatalf("got %+v, want credential-invalid denial", d)
	}
	if rec := auditor.last(t); rec.Method != models.MethodIdentityOnly {
		t.Errorf("audit method = %q, want identity-only", rec.Method)
	}
}

func TestCredentialMalformed(t *testing.T) {
	verifier := &fakeVerifier{err: identity.ErrMalformedCredential}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, &fakeAudit{})

	d := eng.Evaluate(context.Background(), req(allowedOrigin, "bad token"))
	if d.ReasonCode != models.ReasonCredentialMalformed {
		t.Fatalf("reason = %q, want credential-malformed", d.ReasonCode)
	}
}

func TestProviderUnavailableFailsClosed(t *testing.T) {
	verifier := &fakeVerifier{err: identity.ErrProviderUnavailable}
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, auditor)

	d := eng.Evaluate(context.Background(), req(allowedOrigin, credential))

	if d.Authorized {
		t.Fatal("provider outage must not grant access")
	}
	if d.ReasonCode != models.ReasonSystemError {
		t.Errorf("reason = %q, want system-error (not credential-invalid)", d.ReasonCode)
	}
	if rec := auditor.last(t); rec.Method != models.MethodSystemError {
		t.Errorf("audit method = %q, want system-error", rec.Method)
	}
}

func TestVerifyTimeoutProducesDecisionAndAudit(t *testing.T) {
	verifier := &fakeVerifier{block: true}
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, auditor,
		WithVerifyTimeout(10*time.Millisecond))

	done := make(chan models.AccessDecision, 1)
	go func() {
		done <- eng.Evaluate(context.Background(), req(allowedOrigin, credential))
	}()

	select {
	case d := <-done:
		if d.Authorized || d.ReasonCode != models.ReasonSystemError {
			t.Errorf("got %+v, want system-error denial", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine hung past its verify timeout")
	}
	if auditor.count() != 1 {
		t.Errorf("audit records = %d, want exactly 1 on timeout", auditor.count())
	}
}

func TestCancelledContextStillAudits(t *testing.T) {
	verifier := &fakeVerifier{block: true}
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, auditor)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	d := eng.Evaluate(ctx, req(allowedOrigin, credential))
	if d.ReasonCode != models.ReasonSystemError {
		t.Errorf("reason = %q, want system-error on cancellation", d.ReasonCode)
	}
	if auditor.count() != 1 {
		t.Errorf("audit records = %d, want 1", auditor.count())
	}
}

func TestOriginMissingShortCircuits(t *testing.T) {
	allowlists := &fakeAllowlist{origins: []string{allowedOrigin}}
	auditor := &fakeAudit{}
	eng := newTestEngine(allowlists, &fakeVerifier{}, auditor)

	d := eng.Evaluate(context.Background(), req("", credential))

	if d.ReasonCode != models.ReasonOriginMissing {
		t.Fatalf("reason = %q, want origin-missing", d.ReasonCode)
	}
	if allowlists.calls != 0 {
		t.Errorf("allowlist fetched %d times for an empty origin, want 0", allowlists.calls)
	}
	if auditor.count() != 1 {
		t.Errorf("audit records = %d, want 1", auditor.count())
	}
}

func TestEmptyAllowlistDeniesEverything(t *testing.T) {
	verifier := &fakeVerifier{assertion: &models.IdentityAssertion{SubjectID: "subj-1"}}
	eng := newTestEngine(&fakeAllowlist{}, verifier, &fakeAudit{})

	d := eng.Evaluate(context.Background(), req(allowedOrigin, credential))

	if d.Authorized {
		t.Fatal("never-set allowlist must deny, not allow")
	}
	if d.ReasonCode != models.ReasonOriginNotAllowed {
		t.Errorf("reason = %q, want origin-not-allowed", d.ReasonCode)
	}
	if verifier.calls != 0 {
		t.Errorf("verifier called %d times, want 0", verifier.calls)
	}
}

func TestAllowlistFetchErrorFailsClosed(t *testing.T) {
	allowlists := &fakeAllowlist{err: errors.New("connection refused")}
	auditor := &fakeAudit{}
	eng := newTestEngine(allowlists, &fakeVerifier{}, auditor)

	d := eng.Evaluate(context.Background(), req(allowedOrigin, credential))

	if d.Authorized || d.ReasonCode != models.ReasonSystemError {
		t.Fatalf("got %+v, want system-error denial", d)
	}
	if !d.SystemError() {
		t.Error("dependency failure not flagged as system error")
	}
}

func TestDualGateInvariant(t *testing.T) {
	cases := []struct {
		name       string
		origin     string
		cred       string
		verifyErr  error
		authorized bool
	}{
		{"both pass", allowedOrigin, credential, nil, true},
		{"origin fails", otherOrigin, credential, nil, false},
		{"credential fails", allowedOrigin, credential, identity.ErrInvalidCredential, false},
		{"both fail", otherOrigin, credential, identity.ErrInvalidCredential, false},
		{"origin passes, no credential", allowedOrigin, "", nil, false},
		{"origin fails, no credential", otherOrigin, "", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &fakeVerifier{
				assertion: &models.IdentityAssertion{SubjectID: "subj-1"},
				err:       tc.verifyErr,
			}
			eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, verifier, &fakeAudit{})
			d := eng.Evaluate(context.Background(), req(tc.origin, tc.cred))
			if d.Authorized != tc.authorized {
				t.Errorf("authorized = %v, want %v", d.Authorized, tc.authorized)
			}
		})
	}
}

func TestAuditNeverContainsCredential(t *testing.T) {
	scenarios := []struct {
		name     string
		verifier *fakeVerifier
		origin   string
	}{
		{"success", &fakeVerifier{assertion: &models.IdentityAssertion{SubjectID: "s", DisplayName: "n"}}, allowedOrigin},
		{"invalid", &fakeVerifier{err: identity.ErrInvalidCredential}, allowedOrigin},
		{"malformed", &fakeVerifier{err: identity.ErrMalformedCredential}, allowedOrigin},
		{"provider down", &fakeVerifier{err: identity.ErrProviderUnavailable}, allowedOrigin},
		{"origin denied", &fakeVerifier{}, otherOrigin},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			auditor := &fakeAudit{}
			eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, sc.verifier, auditor)
			eng.Evaluate(context.Background(), req(sc.origin, credential))

			rec := auditor.last(t)
			for field, v := range map[string]string{
				"request_id":   rec.RequestID,
				"origin":       rec.OriginAddress,
				"subject_id":   rec.SubjectID,
				"display_name": rec.DisplayName,
				"method":       string(rec.Method),
				"result":       rec.Result,
				"reason_code":  string(rec.ReasonCode),
				"fingerprint":  rec.CredentialFP,
			} {
				if strings.Contains(v, credential) {
					t.Errorf("audit field %s leaks the raw credential", field)
				}
			}
			if rec.CredentialFP == "" {
				t.Error("fingerprint missing for a credential-bearing request")
			}
		})
	}
}

func TestFailureRecordsAlwaysCarryReason(t *testing.T) {
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}},
		&fakeVerifier{err: identity.ErrProviderUnavailable}, auditor)

	eng.Evaluate(context.Background(), req("", ""))
	eng.Evaluate(context.Background(), req(otherOrigin, ""))
	eng.Evaluate(context.Background(), req(allowedOrigin, ""))
	eng.Evaluate(context.Background(), req(allowedOrigin, credential))

	auditor.mu.Lock()
	defer auditor.mu.Unlock()
	if len(auditor.records) != 4 {
		t.Fatalf("audit records = %d, want 4 (one per evaluation)", len(auditor.records))
	}
	for i, rec := range auditor.records {
		if rec.Result == models.ResultFailure && rec.ReasonCode == "" {
			t.Errorf("record %d: failure with empty reason code", i)
		}
	}
}

func TestRequestIDPropagatesToAudit(t *testing.T) {
	auditor := &fakeAudit{}
	eng := newTestEngine(&fakeAllowlist{origins: []string{allowedOrigin}}, &fakeVerifier{
		assertion: &models.IdentityAssertion{SubjectID: "s"},
	}, auditor)

	ctx := WithRequestID(context.Background(), "req-42")
	eng.Evaluate(ctx, req(allowedOrigin, credential))

	if rec := auditor.last(t); rec.RequestID != "req-42" {
		t.Errorf("audit request id = %q, want req-42", rec.RequestID)
	}
}
