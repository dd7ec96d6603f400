// Package auth authorizes office requests: snapshot uploads and manual
// messages.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"driverstatus/internal/model"
)

// Header names accepted by the Verifier.
const (
	HeaderSecret    = "X-Admin-Secret"
	HeaderSignature = "X-Signature"
)

// ErrNotConfigured is returned when no admin secret is set. Admin endpoints
// are closed in that case.
var ErrNotConfigured = errors.New("admin secret not configured")

// Verifier checks the shared admin secret. A request is authorized by one of
//   - an X-Signature header carrying the HMAC-SHA256 of the body,
//   - the secret itself in X-Admin-Secret or as a Bearer token,
//   - the secret in the "secret" query parameter (legacy upload clients).
type Verifier struct {
	Secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{Secret: strings.TrimSpace(secret)}
}

func (v *Verifier) Configured() bool { return v != nil && v.Secret != "" }

// Authorize returns nil when r carries valid admin credentials. body is the
// raw request body, needed only for signature checks.
func (v *Verifier) Authorize(r *http.Request, body []byte) error {
	if !v.Configured() {
		return ErrNotConfigured
	}
	if sig := r.Header.Get(HeaderSignature); sig != "" {
		if VerifyHMAC(v.Secret, body, sig) {
			return nil
		}
		return model.ErrUnauthorized
	}
	if v.matches(presented(r)) {
		return nil
	}
	return model.ErrUnauthorized
}

func presented(r *http.Request) string {
	if s := r.Header.Get(HeaderSecret); s != "" {
		return s
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return r.URL.Query().Get("secret")
}

func (v *Verifier) matches(s string) bool {
	if s == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s), []byte(v.Secret)) == 1
}
