package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	dbutil "github.com/allmovies/ultrapro/internal/db"
	"github.com/allmovies/ultrapro/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// List pagination bounds.
const (
	defaultSearchLogLimit = 50
	maxSearchLogLimit     = 500
)

// SearchLogHandler serves search log inspection endpoints.
type SearchLogHandler struct {
	db *gorm.DB
}

// NewSearchLogHandler constructs a search log handler.
func NewSearchLogHandler(db *gorm.DB) *SearchLogHandler {
	return &SearchLogHandler{db: db}
}

// List returns search logs, newest first, with optional filters.
func (h *SearchLogHandler) List(c *gin.Context) {
	var (
		identityQ = strings.TrimSpace(c.Query("identity"))
		outcomeQ  = strings.TrimSpace(c.Query("outcome"))
		searchQ   = strings.TrimSpace(c.Query("q"))
		sinceQ    = strings.TrimSpace(c.Query("since"))
		untilQ    = strings.TrimSpace(c.Query("until"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.SearchLog{})
	if identityQ != "" {
		q = q.Where("identity_key = ?", identityQ)
	}
	if outcomeQ != "" {
		q = q.Where("outcome = ?", outcomeQ)
	}
	if searchQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+searchQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "query"), pattern)
	}
	if sinceQ != "" {
		since, errParse := time.Parse(time.RFC3339, sinceQ)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		q = q.Where("created_at >= ?", since.UTC())
	}
	if untilQ != "" {
		until, errParse := time.Parse(time.RFC3339, untilQ)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until"})
			return
		}
		q = q.Where("created_at < ?", until.UTC())
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count search logs failed"})
		return
	}

	limit := defaultSearchLogLimit
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxSearchLogLimit {
		limit = maxSearchLogLimit
	}
	offset := 0
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil && parsed > 0 {
			offset = parsed
		}
	}

	var rows []models.SearchLog
	if errFind := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list search logs failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":           row.ID,
			"trace_id":     row.TraceID,
			"update_id":    row.UpdateID,
			"identity_key": row.IdentityKey,
			"chat_id":      row.ChatID,
			"query":        row.Query,
			"outcome":      row.Outcome,
			"latency_ms":   row.LatencyMS,
			"detail":       json.RawMessage(row.Detail),
			"created_at":   row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": out, "total": total})
}

// Stats returns totals grouped by outcome plus a trailing 24h count.
func (h *SearchLogHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	var total int64
	if errCount := h.db.WithContext(ctx).Model(&models.SearchLog{}).Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count search logs failed"})
		return
	}

	type outcomeRow struct {
		Outcome string `gorm:"column:outcome"`
		Count   int64  `gorm:"column:count"`
	}
	var grouped []outcomeRow
	if errGroup := h.db.WithContext(ctx).Model(&models.SearchLog{}).
		Select("outcome, COUNT(*) AS count").
		Group("outcome").
		Scan(&grouped).Error; errGroup != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "group search logs failed"})
		return
	}
	outcomes := make(map[string]int64, len(grouped))
	for _, row := range grouped {
		outcomes[row.Outcome] = row.Count
	}

	var recent int64
	since := time.Now().UTC().Add(-24 * time.Hour)
	if errRecent := h.db.WithContext(ctx).Model(&models.SearchLog{}).
		Where("created_at >= ?", since).
		Count(&recent).Error; errRecent != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count recent search logs failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"last_24h": recent,
		"outcomes": outcomes,
	})
}

// Trim deletes search logs older than a cutoff given as before=RFC3339 or
// keep_days=N.
func (h *SearchLogHandler) Trim(c *gin.Context) {
	beforeQ := strings.TrimSpace(c.Query("before"))
	keepDaysQ := strings.TrimSpace(c.Query("keep_days"))

	var cutoff time.Time
	switch {
	case beforeQ != "":
		parsed, errParse := time.Parse(time.RFC3339, beforeQ)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before"})
			return
		}
		cutoff = parsed.UTC()
	case keepDaysQ != "":
		days, errParse := strconv.Atoi(keepDaysQ)
		if errParse != nil || days < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid keep_days"})
			return
		}
		cutoff = time.Now().UTC().AddDate(0, 0, -days)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing cutoff"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).
		Where("created_at < ?", cutoff).
		Delete(&models.SearchLog{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trim failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": res.RowsAffected})
}
