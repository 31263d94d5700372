package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/allmovies/ultrapro/internal/models"
	internalsettings "github.com/allmovies/ultrapro/internal/settings"

	log "github.com/sirupsen/logrus"
)

// retentionInterval paces the background prune loop.
const retentionInterval = time.Hour

// RetentionDays returns how many days of search logs to keep, honoring the
// DB settings override. Zero disables pruning.
func RetentionDays() int {
	days := internalsettings.DefaultSearchLogRetentionDays
	if raw, ok := internalsettings.DBConfigValue(internalsettings.SearchLogRetentionDaysKey); ok {
		if parsed, okParse := parseRetentionDays(raw); okParse {
			days = parsed
		}
	}
	if days < 0 {
		days = 0
	}
	return days
}

// Prune deletes search logs created before the cutoff and returns how many
// rows went away.
func (r *Recorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.SearchLog{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// RunRetention prunes aged search logs on a fixed cadence until the
// context ends.
func (r *Recorder) RunRetention(ctx context.Context) {
	if r == nil || r.db == nil {
		return
	}
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			days := RetentionDays()
			if days <= 0 {
				continue
			}
			cutoff := time.Now().UTC().AddDate(0, 0, -days)
			pruneCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			removed, errPrune := r.Prune(pruneCtx, cutoff)
			cancel()
			if errPrune != nil {
				log.WithError(errPrune).Warn("activity: failed to prune search logs")
				continue
			}
			if removed > 0 {
				log.Infof("activity: pruned %d search logs older than %d days", removed, days)
			}
		}
	}
}

func parseRetentionDays(raw json.RawMessage) (int, bool) {
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
	return 0, false
}
