package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/allmovies/ultrapro/internal/activity"
	"github.com/allmovies/ultrapro/internal/bot"
	"github.com/allmovies/ultrapro/internal/config"
	"github.com/allmovies/ultrapro/internal/db"
	"github.com/allmovies/ultrapro/internal/dispatch"
	"github.com/allmovies/ultrapro/internal/http/api/admin"
	"github.com/allmovies/ultrapro/internal/http/api/front"
	"github.com/allmovies/ultrapro/internal/movies"
	"github.com/allmovies/ultrapro/internal/ratelimit"
	"github.com/allmovies/ultrapro/internal/resultcache"
	"github.com/allmovies/ultrapro/internal/security"
	"github.com/allmovies/ultrapro/internal/telegram"
	"github.com/allmovies/ultrapro/internal/watcher"
	"github.com/allmovies/ultrapro/internal/webhook"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

const (
	shutdownTimeout = 10 * time.Second
	telegramTimeout = 15 * time.Second
)

// RunMigrate opens the database from config and runs migrations.
func RunMigrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(loaded.Database.DSN)
	if err != nil {
		return err
	}
	defer closeDB(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	log.Infof("migrations applied (dsn=%s)", loaded.Database.DSN)
	return nil
}

// RunServer boots the webhook pipeline with database-backed components and
// serves until the context ends.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	configureLogging(loaded.Logging)

	if loaded.Bot.Token == "" {
		return fmt.Errorf("app: bot token is required (set bot.token or %s)", config.EnvBotToken)
	}
	if loaded.JWT.Secret == "" {
		secret, errSecret := security.GenerateRandomString(32)
		if errSecret != nil {
			return fmt.Errorf("app: generate jwt secret: %w", errSecret)
		}
		loaded.JWT.Secret = secret
		log.Warn("jwt secret not configured, generated an ephemeral one; admin sessions reset on restart")
	}

	conn, err := db.Open(loaded.Database.DSN)
	if err != nil {
		return err
	}
	defer closeDB(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errAdmin := EnsureAdmin(conn); errAdmin != nil {
		return errAdmin
	}

	settingsWatcher := watcher.New(conn, 0)
	if errWatch := settingsWatcher.Start(ctx); errWatch != nil {
		return errWatch
	}
	defer stopWatcher(settingsWatcher)

	client, err := telegram.NewClient(loaded.Bot.Token, loaded.Bot.APIBaseURL)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewManager(loaded.RateLimit.MaxRequests, loaded.RateLimit.Window(), nil, nil)
	go limiter.RunSweeper(ctx)

	cache := resultcache.New(loaded.Cache.MaxEntries, loaded.Cache.TTL(), nil, nil)
	defer cache.Close()

	recorder := activity.NewRecorder(conn, 0)
	defer recorder.Close()
	go recorder.RunRetention(ctx)

	search := movies.NewService(loaded.Movies.TMDBAPIKey, loaded.Movies.OMDBAPIKey)
	handlers := bot.NewHandlers(search, conn, loaded.Bot.OwnerID)

	dispatcher := dispatch.New(dispatch.Config{
		Workers:        loaded.Handler.ConcurrencyLimit,
		QueueSize:      loaded.Handler.ConcurrencyLimit * 4,
		HandlerTimeout: loaded.Handler.Timeout(),
	}, handlers, client, limiter, cache, recorder)
	defer dispatcher.Close()

	poller := telegram.NewPoller(client, func(pollCtx context.Context, raw []byte) {
		dispatcher.Dispatch(pollCtx, raw)
	})

	verifier := webhook.NewVerifier(loaded.Webhook.SharedSecret)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	front.RegisterFrontRoutes(engine, loaded.Bot.Token, verifier, dispatcher, poller)
	admin.RegisterAdminRoutes(engine, conn, loaded.JWT)

	if errIntake := startIntake(ctx, loaded, client, poller); errIntake != nil {
		return errIntake
	}

	addr := fmt.Sprintf(":%d", loaded.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		deleteWebhook(client)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Error("server shutdown error")
		}
	}()

	log.Infof("starting bot server on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// startIntake registers the webhook when a public URL is configured and
// falls back to long polling otherwise.
func startIntake(ctx context.Context, loaded config.Config, client *telegram.Client, poller *telegram.Poller) error {
	callCtx, cancel := context.WithTimeout(ctx, telegramTimeout)
	defer cancel()

	publicURL := strings.TrimSpace(loaded.Webhook.PublicURL)
	if publicURL != "" {
		hookURL := publicURL + "/webhook/" + loaded.Bot.Token
		if errHook := client.SetWebhook(callCtx, hookURL, loaded.Webhook.SharedSecret); errHook != nil {
			return fmt.Errorf("app: register webhook: %w", errHook)
		}
		log.Infof("webhook registered at %s/webhook/***", publicURL)
		return nil
	}

	// Long polling requires that no webhook is registered.
	if errDelete := client.DeleteWebhook(callCtx); errDelete != nil {
		log.WithError(errDelete).Warn("app: failed to delete stale webhook before polling")
	}
	poller.Start(ctx)
	log.Info("no public webhook url configured, long polling started")
	return nil
}

// deleteWebhook clears the platform-side webhook registration on shutdown.
func deleteWebhook(client *telegram.Client) {
	callCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errDelete := client.DeleteWebhook(callCtx); errDelete != nil {
		log.WithError(errDelete).Warn("app: failed to delete webhook on shutdown")
	}
}

// configureLogging applies the log level and optional rotating file sink.
func configureLogging(cfg config.LoggingConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.TrimSpace(cfg.File) != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    64, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
}

func closeDB(conn *gorm.DB) {
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return
	}
	if errClose := sqlDB.Close(); errClose != nil {
		log.WithError(errClose).Error("sql db close error")
	}
}

func stopWatcher(w *watcher.Watcher) {
	if errStop := w.Stop(); errStop != nil {
		log.WithError(errStop).Warn("app: watcher stop error")
	}
}
