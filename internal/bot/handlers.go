// Package bot maps inbound commands and title queries to replies.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allmovies/ultrapro/internal/dispatch"
	"github.com/allmovies/ultrapro/internal/models"
	"github.com/allmovies/ultrapro/internal/movies"
	internalsettings "github.com/allmovies/ultrapro/internal/settings"
	"github.com/allmovies/ultrapro/internal/telegram"

	"gorm.io/gorm"
)

const (
	helpReply     = "Send a movie name. Example: `Jailer`"
	pingReply     = "pong ✅"
	notFoundReply = "❌ Not found. Try another title."
)

// Searcher resolves a title query to a movie.
type Searcher interface {
	Search(ctx context.Context, query string) (*movies.Movie, error)
}

// Handlers implements the dispatch handler for the movie bot.
type Handlers struct {
	search  Searcher
	db      *gorm.DB
	ownerID int64
	started time.Time
}

// NewHandlers constructs the bot handler set.
func NewHandlers(search Searcher, db *gorm.DB, ownerID int64) *Handlers {
	return &Handlers{
		search:  search,
		db:      db,
		ownerID: ownerID,
		started: time.Now().UTC(),
	}
}

// Handle routes one update to its command or the title search.
func (h *Handlers) Handle(ctx context.Context, update *telegram.Update) (*dispatch.Reply, error) {
	if h == nil || update == nil {
		return nil, nil
	}
	switch command := update.Command(); command {
	case "start":
		welcome := fmt.Sprintf("🎬 Welcome to *%s*!\nSend a movie name.", siteName())
		return &dispatch.Reply{Text: welcome, ParseMode: telegram.ParseModeMarkdown}, nil
	case "help":
		return &dispatch.Reply{Text: helpReply, ParseMode: telegram.ParseModeMarkdown}, nil
	case "ping":
		return &dispatch.Reply{Text: pingReply}, nil
	case "stats":
		return h.handleStats(ctx, update)
	case "":
		return h.handleSearch(ctx, update)
	default:
		// Unknown commands stay silent, matching chat bot etiquette.
		return nil, nil
	}
}

func (h *Handlers) handleSearch(ctx context.Context, update *telegram.Update) (*dispatch.Reply, error) {
	query := strings.TrimSpace(update.Text())
	if query == "" {
		return nil, nil
	}

	movie, errSearch := h.search.Search(ctx, query)
	if errSearch != nil {
		if errors.Is(errSearch, movies.ErrNotFound) {
			return &dispatch.Reply{Text: notFoundReply, Meta: map[string]interface{}{"result": "not_found"}}, nil
		}
		return nil, fmt.Errorf("bot: search %q: %w", query, errSearch)
	}

	caption := fmt.Sprintf("🎬 *%s* (%s)\n⭐ %s / 10 (%s)", movie.Title, movie.Year, movie.Rating, ratingLabel(movie.Source))
	reply := &dispatch.Reply{
		ParseMode: telegram.ParseModeMarkdown,
		Meta:      map[string]interface{}{"source": movie.Source},
	}
	if movie.PosterURL != "" {
		reply.PhotoURL = movie.PosterURL
		reply.Caption = caption
	} else {
		reply.Text = caption
	}
	return reply, nil
}

// handleStats is owner-only; anyone else gets silence.
func (h *Handlers) handleStats(ctx context.Context, update *telegram.Update) (*dispatch.Reply, error) {
	if h.ownerID == 0 || update.SenderID() != h.ownerID {
		return nil, nil
	}
	if h.db == nil {
		return nil, errors.New("bot: stats unavailable without a database")
	}

	var total, recent, throttled int64
	if errCount := h.db.WithContext(ctx).Model(&models.SearchLog{}).Count(&total).Error; errCount != nil {
		return nil, fmt.Errorf("bot: count search logs: %w", errCount)
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if errCount := h.db.WithContext(ctx).Model(&models.SearchLog{}).
		Where("created_at >= ?", since).
		Count(&recent).Error; errCount != nil {
		return nil, fmt.Errorf("bot: count recent search logs: %w", errCount)
	}
	if errCount := h.db.WithContext(ctx).Model(&models.SearchLog{}).
		Where("outcome = ? AND created_at >= ?", models.OutcomeThrottled, since).
		Count(&throttled).Error; errCount != nil {
		return nil, fmt.Errorf("bot: count throttled search logs: %w", errCount)
	}

	text := fmt.Sprintf("📊 %s stats\nHandled total: %d\nHandled 24h: %d\nThrottled 24h: %d\nUptime: %s",
		siteName(), total, recent, throttled, time.Since(h.started).Truncate(time.Second))
	return &dispatch.Reply{Text: text}, nil
}

func ratingLabel(source string) string {
	if source == movies.SourceOMDB {
		return "IMDB"
	}
	return "TMDB"
}

// siteName reads the display name override from DB config.
func siteName() string {
	if raw, ok := internalsettings.DBConfigValue(internalsettings.SiteNameKey); ok {
		var name string
		if errUnmarshal := json.Unmarshal(raw, &name); errUnmarshal == nil {
			if name = strings.TrimSpace(name); name != "" {
				return name
			}
		}
	}
	return internalsettings.DefaultSiteName
}

var _ dispatch.Handler = (*Handlers)(nil)
