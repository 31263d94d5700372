package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/allmovies/ultrapro/internal/db"
	"github.com/allmovies/ultrapro/internal/models"
	"github.com/allmovies/ultrapro/internal/movies"
	"github.com/allmovies/ultrapro/internal/telegram"

	"gorm.io/gorm"
)

type stubSearcher struct {
	fn    func(ctx context.Context, query string) (*movies.Movie, error)
	calls int
}

func (s *stubSearcher) Search(ctx context.Context, query string) (*movies.Movie, error) {
	s.calls++
	if s.fn == nil {
		return nil, movies.ErrNotFound
	}
	return s.fn(ctx, query)
}

func textUpdate(senderID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 10,
			From:      &telegram.User{ID: senderID},
			Chat:      &telegram.Chat{ID: senderID, Type: "private"},
			Text:      text,
		},
	}
}

func TestHandlers_StartCommand(t *testing.T) {
	handlers := NewHandlers(&stubSearcher{}, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "/start"))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply == nil {
		t.Fatal("expected a welcome reply, got nil")
	}
	if !strings.Contains(reply.Text, "AllMovies UltraPro") {
		t.Fatalf("expected welcome to name the service, got %q", reply.Text)
	}
	if reply.ParseMode != telegram.ParseModeMarkdown {
		t.Fatalf("expected markdown parse mode, got %q", reply.ParseMode)
	}
}

func TestHandlers_HelpCommand(t *testing.T) {
	handlers := NewHandlers(&stubSearcher{}, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "/help"))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply == nil || reply.Text != helpReply {
		t.Fatalf("expected help text, got %+v", reply)
	}
	if reply.ParseMode != telegram.ParseModeMarkdown {
		t.Fatalf("expected markdown parse mode, got %q", reply.ParseMode)
	}
}

func TestHandlers_PingCommand(t *testing.T) {
	handlers := NewHandlers(&stubSearcher{}, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "/ping"))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply == nil || reply.Text != pingReply {
		t.Fatalf("expected pong, got %+v", reply)
	}
	if reply.ParseMode != "" {
		t.Fatalf("expected plain parse mode, got %q", reply.ParseMode)
	}
}

func TestHandlers_UnknownCommandStaysSilent(t *testing.T) {
	searcher := &stubSearcher{}
	handlers := NewHandlers(searcher, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "/frobnicate"))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply != nil {
		t.Fatalf("expected silence, got %+v", reply)
	}
	if searcher.calls != 0 {
		t.Fatalf("expected no search for unknown command, got %d calls", searcher.calls)
	}
}

func TestHandlers_SearchWithPoster(t *testing.T) {
	searcher := &stubSearcher{fn: func(ctx context.Context, query string) (*movies.Movie, error) {
		if query != "Jailer" {
			t.Fatalf("expected query %q, got %q", "Jailer", query)
		}
		return &movies.Movie{
			Title:     "Jailer",
			Year:      "2023",
			Rating:    "7.1",
			PosterURL: "https://image.tmdb.org/t/p/w500/jailer.jpg",
			Source:    movies.SourceTMDB,
		}, nil
	}}
	handlers := NewHandlers(searcher, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "Jailer"))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply == nil {
		t.Fatal("expected a reply, got nil")
	}
	if reply.PhotoURL != "https://image.tmdb.org/t/p/w500/jailer.jpg" {
		t.Fatalf("expected poster url, got %q", reply.PhotoURL)
	}
	want := "🎬 *Jailer* (2023)\n⭐ 7.1 / 10 (TMDB)"
	if reply.Caption != want {
		t.Fatalf("expected caption %q, got %q", want, reply.Caption)
	}
	if reply.Text != "" {
		t.Fatalf("expected photo reply without text, got %q", reply.Text)
	}
	if reply.ParseMode != telegram.ParseModeMarkdown {
		t.Fatalf("expected markdown parse mode, got %q", reply.ParseMode)
	}
	if source, _ := reply.Meta["source"].(string); source != movies.SourceTMDB {
		t.Fatalf("expected tmdb source meta, got %v", reply.Meta)
	}
}

func TestHandlers_SearchWithoutPosterFallsBackToText(t *testing.T) {
	searcher := &stubSearcher{fn: func(ctx context.Context, query string) (*movies.Movie, error) {
		return &movies.Movie{Title: "Jailer", Year: "2023", Rating: "7.8", Source: movies.SourceOMDB}, nil
	}}
	handlers := NewHandlers(searcher, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "Jailer"))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply == nil {
		t.Fatal("expected a reply, got nil")
	}
	if reply.PhotoURL != "" {
		t.Fatalf("expected no poster, got %q", reply.PhotoURL)
	}
	want := "🎬 *Jailer* (2023)\n⭐ 7.8 / 10 (IMDB)"
	if reply.Text != want {
		t.Fatalf("expected caption as text %q, got %q", want, reply.Text)
	}
}

func TestHandlers_SearchNotFound(t *testing.T) {
	handlers := NewHandlers(&stubSearcher{}, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "no such movie"))
	if errHandle != nil {
		t.Fatalf("expected no error for a miss, got %v", errHandle)
	}
	if reply == nil || reply.Text != notFoundReply {
		t.Fatalf("expected not-found reply, got %+v", reply)
	}
	if result, _ := reply.Meta["result"].(string); result != "not_found" {
		t.Fatalf("expected not_found meta, got %v", reply.Meta)
	}
}

func TestHandlers_SearchErrorPropagates(t *testing.T) {
	wantErr := errors.New("providers unreachable")
	searcher := &stubSearcher{fn: func(ctx context.Context, query string) (*movies.Movie, error) {
		return nil, wantErr
	}}
	handlers := NewHandlers(searcher, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "Jailer"))
	if !errors.Is(errHandle, wantErr) {
		t.Fatalf("expected provider error, got %v", errHandle)
	}
	if reply != nil {
		t.Fatalf("expected no reply on error, got %+v", reply)
	}
}

func TestHandlers_BlankTextStaysSilent(t *testing.T) {
	searcher := &stubSearcher{}
	handlers := NewHandlers(searcher, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "   "))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply != nil {
		t.Fatalf("expected silence for blank text, got %+v", reply)
	}
	if searcher.calls != 0 {
		t.Fatalf("expected no search for blank text, got %d calls", searcher.calls)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "bot.db"))
	if errOpen != nil {
		t.Fatalf("expected db to open, got %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("expected migrate to succeed, got %v", errMigrate)
	}
	return conn
}

func TestHandlers_StatsOwnerOnly(t *testing.T) {
	conn := newTestDB(t)
	rows := []models.SearchLog{
		{TraceID: "t1", IdentityKey: "u:1", Outcome: models.OutcomeCompleted, CreatedAt: time.Now().UTC()},
		{TraceID: "t2", IdentityKey: "u:2", Outcome: models.OutcomeThrottled, CreatedAt: time.Now().UTC()},
		{TraceID: "t3", IdentityKey: "u:3", Outcome: models.OutcomeCompleted, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)},
	}
	for i := range rows {
		if errCreate := conn.Create(&rows[i]).Error; errCreate != nil {
			t.Fatalf("expected seed row to insert, got %v", errCreate)
		}
	}
	handlers := NewHandlers(&stubSearcher{}, conn, 99)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "/stats"))
	if errHandle != nil {
		t.Fatalf("expected no error for non-owner, got %v", errHandle)
	}
	if reply != nil {
		t.Fatalf("expected silence for non-owner, got %+v", reply)
	}

	reply, errHandle = handlers.Handle(context.Background(), textUpdate(99, "/stats"))
	if errHandle != nil {
		t.Fatalf("expected no error for owner, got %v", errHandle)
	}
	if reply == nil {
		t.Fatal("expected stats reply, got nil")
	}
	if !strings.Contains(reply.Text, "Handled total: 3") {
		t.Fatalf("expected total of 3, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Handled 24h: 2") {
		t.Fatalf("expected 2 recent rows, got %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Throttled 24h: 1") {
		t.Fatalf("expected 1 throttled row, got %q", reply.Text)
	}
}

func TestHandlers_StatsDisabledWithoutOwner(t *testing.T) {
	handlers := NewHandlers(&stubSearcher{}, nil, 0)

	reply, errHandle := handlers.Handle(context.Background(), textUpdate(42, "/stats"))
	if errHandle != nil {
		t.Fatalf("expected no error, got %v", errHandle)
	}
	if reply != nil {
		t.Fatalf("expected stats to stay silent when unconfigured, got %+v", reply)
	}
}
