package resultcache

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	internalsettings "github.com/allmovies/ultrapro/internal/settings"
)

// SettingsConfig captures cache overrides stored in DB config. Zero values
// mean the static configuration stays in force.
type SettingsConfig struct {
	TTLSeconds int
}

// LoadSettingsConfig loads the current cache settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	cfg := SettingsConfig{
		TTLSeconds: internalsettings.DefaultCacheTTLSeconds,
	}
	if raw, ok := internalsettings.DBConfigValue(internalsettings.CacheTTLSecondsKey); ok {
		if ttlSeconds, okParse := parseNonNegativeInt(raw); okParse {
			cfg.TTLSeconds = ttlSeconds
		}
	}
	if cfg.TTLSeconds < 0 {
		cfg.TTLSeconds = 0
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
