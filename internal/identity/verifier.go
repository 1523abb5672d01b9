// Package identity adapts an external identity provider's token
// introspection endpoint. It answers one question: is this bearer
// credential currently valid, and if so, for whom.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/org/accessgate/pkg/models"
)

// Verification failure variants. ErrProviderUnavailable must never be
// conflated with ErrInvalidCredential: one is an operational failure,
// the other is attacker-shaped traffic.
var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// maxCredentialLen bounds the credential before any network call; a
// token longer than this is malformed on its face.
const maxCredentialLen = 4096

// DefaultTimeout is the per-call budget when none is configured.
const DefaultTimeout = 5 * time.Second

// Verifier checks bearer credentials against an external identity
// provider over HTTP. It performs no retries; retry policy, if any,
// belongs to the caller.
type Verifier struct {
	providerURL string
	client      *http.Client
}

// NewVerifier creates a Verifier for the given introspection URL.
// timeout bounds each provider call; zero means DefaultTimeout.
func NewVerifier(providerURL string, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{
		providerURL: providerURL,
		client:      &http.Client{Timeout: timeout},
	}
}

type introspectRequest struct {
	Token string `json:"token"`
}

type introspectResponse struct {
	Active      bool   `json:"active"`
	SubjectID   string `json:"sub"`
	DisplayName string `json:"name"`
}

// Verify asks the provider whether credential is currently valid.
// Error values wrap exactly one of the sentinel variants above and
// never include the credential itself.
func (v *Verifier) Verify(ctx context.Context, credential string) (*models.IdentityAssertion, error) {
	if !wellFormed(credential) {
		return nil, ErrMalformedCredential
	}

	body, err := json.Marshal(introspectRequest{Token: credential})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request", ErrProviderUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.providerURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request", ErrProviderUnavailable)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		// Transport errors and timeouts land here. The error text from
		// net/http can embed the URL but never the request body.
		return nil, fmt.Errorf("%w: provider call failed", ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusBadRequest:
		return nil, ErrMalformedCredential
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredential
	default:
		return nil, fmt.Errorf("%w: provider returned HTTP %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var ir introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, fmt.Errorf("%w: decoding provider response", ErrProviderUnavailable)
	}
	if !ir.Active {
		return nil, ErrInvalidCredential
	}
	if ir.SubjectID == "" {
		return nil, fmt.Errorf("%w: provider omitted subject", ErrProviderUnavailable)
	}
	return &models.IdentityAssertion{
		SubjectID:   ir.SubjectID,
		DisplayName: ir.DisplayName,
	}, nil
}

// wellFormed is the syntactic precheck applied before any network I/O.
// Opaque tokens are printable ASCII without whitespace.
func wellFormed(credential string) bool {
	if credential == "" || len(credential) > maxCredentialLen {
		return false
	}
	for i := 0; i < len(credential); i++ {
		c := credential[i]
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}
