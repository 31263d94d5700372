package settings

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStoreDBConfig_CopiesValues(t *testing.T) {
	t.Cleanup(ResetDBConfig)

	values := map[string]json.RawMessage{
		RateLimitMaxRequestsKey: json.RawMessage(`5`),
	}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	StoreDBConfig(at, values)

	// Mutating the caller's map must not leak into the snapshot.
	values[RateLimitMaxRequestsKey] = json.RawMessage(`99`)

	raw, ok := DBConfigValue(RateLimitMaxRequestsKey)
	if !ok {
		t.Fatal("expected value present")
	}
	if string(raw) != "5" {
		t.Fatalf("expected 5, got %s", raw)
	}
	if !DBConfigUpdatedAt().Equal(at) {
		t.Fatalf("expected updated_at=%s, got %s", at, DBConfigUpdatedAt())
	}
}

func TestDBConfigValue_MissingKey(t *testing.T) {
	t.Cleanup(ResetDBConfig)

	ResetDBConfig()
	if _, ok := DBConfigValue(CacheTTLSecondsKey); ok {
		t.Fatal("expected missing value on empty snapshot")
	}

	StoreDBConfig(time.Now(), map[string]json.RawMessage{SiteNameKey: json.RawMessage(`"x"`)})
	if _, ok := DBConfigValue(CacheTTLSecondsKey); ok {
		t.Fatal("expected missing value for unknown key")
	}
}
