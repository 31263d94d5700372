package ratelimit

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	internalsettings "github.com/allmovies/ultrapro/internal/settings"
)

// SettingsConfig captures rate limit overrides stored in DB config.
// Zero values mean the static configuration stays in force.
type SettingsConfig struct {
	MaxRequests   int
	WindowSeconds int
}

// LoadSettingsConfig loads the current rate limit settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	cfg := SettingsConfig{
		MaxRequests:   internalsettings.DefaultRateLimitMaxRequests,
		WindowSeconds: internalsettings.DefaultRateLimitWindowSeconds,
	}

	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitMaxRequestsKey); ok {
		if maxRequests, okParse := parseNonNegativeInt(raw); okParse {
			cfg.MaxRequests = maxRequests
		}
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.RateLimitWindowSecondsKey); ok {
		if windowSeconds, okParse := parseNonNegativeInt(raw); okParse {
			cfg.WindowSeconds = windowSeconds
		}
	}
	if cfg.MaxRequests < 0 {
		cfg.MaxRequests = 0
	}
	if cfg.WindowSeconds < 0 {
		cfg.WindowSeconds = 0
	}
	return cfg
}

func parseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
