package security

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestHashAndCheckPassword(t *testing.T) {
	hashed, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hashed == "hunter2" {
		t.Fatal("expected hashed password to differ from plaintext")
	}
	if !CheckPassword(hashed, "hunter2") {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword(hashed, "wrong") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestGenerateRandomString(t *testing.T) {
	first, err := GenerateRandomString(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(first) != 32 {
		t.Fatalf("expected length 32, got %d", len(first))
	}
	second, err := GenerateRandomString(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct random strings")
	}

	if _, errInvalid := GenerateRandomString(0); errInvalid == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestAdminTokenRoundtrip(t *testing.T) {
	token, err := CreateAdminToken("secret", time.Hour, 7, "admin")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	claims, errParse := ParseAdminToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.AdminID != 7 {
		t.Fatalf("expected admin_id=7, got %d", claims.AdminID)
	}
	if claims.Username != "admin" {
		t.Fatalf("expected username=admin, got %q", claims.Username)
	}

	if _, errWrong := ParseAdminToken("other-secret", token); errWrong == nil {
		t.Fatal("expected parse failure with wrong secret")
	}
}

func TestParseAdminToken_Expired(t *testing.T) {
	token, err := CreateAdminToken("secret", time.Nanosecond, 7, "admin")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, errParse := ParseAdminToken("secret", token); errParse == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestCreateAdminToken_EmptySecret(t *testing.T) {
	if _, err := CreateAdminToken("  ", time.Hour, 1, "admin"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestTOTPRoundtrip(t *testing.T) {
	secret, url, err := ProvisionTOTP("AllMovies UltraPro", "admin")
	if err != nil {
		t.Fatalf("provision totp: %v", err)
	}
	if secret == "" || url == "" {
		t.Fatal("expected non-empty secret and url")
	}

	code, errCode := totp.GenerateCode(secret, time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	if !ValidateTOTP(code, secret) {
		t.Fatal("expected current code to validate")
	}
	if ValidateTOTP("000000", secret) && code != "000000" {
		t.Fatal("expected wrong code to fail")
	}
	if ValidateTOTP("", secret) {
		t.Fatal("expected empty code to fail")
	}
}
