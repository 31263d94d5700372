package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func TestVerifier_SecretToken(t *testing.T) {
	verifier := NewVerifier("wh_dev")
	body := []byte(`{"update_id":1}`)

	if errVerify := verifier.Verify("wh_dev", body); errVerify != nil {
		t.Fatalf("expected accept, got %v", errVerify)
	}
	if errVerify := verifier.Verify("", body); !errors.Is(errVerify, ErrMissingAuth) {
		t.Fatalf("expected ErrMissingAuth, got %v", errVerify)
	}
	if errVerify := verifier.Verify("   ", body); !errors.Is(errVerify, ErrMissingAuth) {
		t.Fatalf("expected ErrMissingAuth for blank credential, got %v", errVerify)
	}
	if errVerify := verifier.Verify("wrong", body); !errors.Is(errVerify, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", errVerify)
	}
}

func TestVerifier_MalformedBody(t *testing.T) {
	verifier := NewVerifier("wh_dev")

	cases := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "whitespace", body: "   "},
		{name: "truncated", body: `{"update_id":`},
		{name: "array", body: `[{"update_id":1}]`},
		{name: "scalar", body: `42`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errVerify := verifier.Verify("wh_dev", []byte(tc.body))
			if !errors.Is(errVerify, ErrMalformedBody) {
				t.Fatalf("expected ErrMalformedBody, got %v", errVerify)
			}
		})
	}
}

func TestVerifier_AuthCheckedBeforeBody(t *testing.T) {
	verifier := NewVerifier("wh_dev")
	errVerify := verifier.Verify("wrong", []byte("not json"))
	if !errors.Is(errVerify, ErrBadSignature) {
		t.Fatalf("expected auth failure to win over body failure, got %v", errVerify)
	}
}

func TestVerifier_HMAC(t *testing.T) {
	secret := "hmac-secret"
	verifier := NewHMACVerifier(secret)
	body := []byte(`{"update_id":7,"message":{"text":"hi"}}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	digest := mac.Sum(nil)

	hexSig := hex.EncodeToString(digest)
	if errVerify := verifier.Verify(hexSig, body); errVerify != nil {
		t.Fatalf("expected hex signature to verify, got %v", errVerify)
	}
	if errVerify := verifier.Verify("sha256="+hexSig, body); errVerify != nil {
		t.Fatalf("expected prefixed signature to verify, got %v", errVerify)
	}
	if errVerify := verifier.Verify(base64.StdEncoding.EncodeToString(digest), body); errVerify != nil {
		t.Fatalf("expected base64 signature to verify, got %v", errVerify)
	}
	if errVerify := verifier.Verify(hexSig, []byte(`{"update_id":8}`)); !errors.Is(errVerify, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for altered body, got %v", errVerify)
	}
	if errVerify := verifier.Verify("deadbeef", body); !errors.Is(errVerify, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for wrong signature, got %v", errVerify)
	}
}

func TestVerifier_Unconfigured(t *testing.T) {
	var verifier *Verifier
	if errVerify := verifier.Verify("anything", []byte(`{}`)); errVerify == nil {
		t.Fatal("expected error from nil verifier")
	}
	if errVerify := NewVerifier("").Verify("anything", []byte(`{}`)); errVerify == nil {
		t.Fatal("expected error from empty secret")
	}
}
