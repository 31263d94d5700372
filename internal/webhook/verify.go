// Package webhook authenticates inbound update deliveries before they are
// allowed anywhere near the dispatch pipeline.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// HeaderSecretToken is the header Telegram echoes on every webhook delivery
// when a secret token was registered with setWebhook.
const HeaderSecretToken = "X-Telegram-Bot-Api-Secret-Token"

var (
	// ErrMissingAuth marks a delivery that carried no credential at all.
	ErrMissingAuth = errors.New("webhook: missing auth credential")
	// ErrBadSignature marks a credential that was present but wrong.
	ErrBadSignature = errors.New("webhook: credential mismatch")
	// ErrMalformedBody marks a payload that fails shape validation.
	ErrMalformedBody = errors.New("webhook: malformed body")
)

// Mode selects how a delivery proves authenticity.
type Mode string

const (
	// ModeSecretToken compares the shared secret header verbatim.
	ModeSecretToken Mode = "secret_token"
	// ModeHMAC expects a SHA-256 digest of the body keyed with the shared
	// secret, hex or base64 encoded, optionally prefixed with "sha256=".
	ModeHMAC Mode = "hmac"
)

// Verifier checks delivery credentials and payload shape. It keeps no
// per-request state and is safe for concurrent use.
type Verifier struct {
	secret []byte
	mode   Mode
}

// NewVerifier builds a shared-secret verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), mode: ModeSecretToken}
}

// NewHMACVerifier builds a verifier that expects body signatures.
func NewHMACVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), mode: ModeHMAC}
}

// Verify checks the delivery credential and then the payload shape.
// It returns one of ErrMissingAuth, ErrBadSignature or ErrMalformedBody,
// wrapped errors included, so callers can branch with errors.Is.
func (v *Verifier) Verify(credential string, body []byte) error {
	if v == nil || len(v.secret) == 0 {
		return errors.New("webhook: verifier not configured")
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return ErrMissingAuth
	}
	switch v.mode {
	case ModeHMAC:
		if !v.signatureMatches(credential, body) {
			return ErrBadSignature
		}
	default:
		if subtle.ConstantTimeCompare([]byte(credential), v.secret) != 1 {
			return ErrBadSignature
		}
	}
	return validateBody(body)
}

func (v *Verifier) signatureMatches(signature string, body []byte) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	want := mac.Sum(nil)

	if decoded, errHex := hex.DecodeString(signature); errHex == nil {
		return hmac.Equal(decoded, want)
	}
	if decoded, errB64 := base64.StdEncoding.DecodeString(signature); errB64 == nil {
		return hmac.Equal(decoded, want)
	}
	return false
}

// validateBody accepts only a JSON object. Field-level validation happens
// later during update parsing; the verifier just refuses junk early.
func validateBody(body []byte) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return ErrMalformedBody
	}
	var probe map[string]json.RawMessage
	if errUnmarshal := json.Unmarshal(body, &probe); errUnmarshal != nil {
		return ErrMalformedBody
	}
	return nil
}
