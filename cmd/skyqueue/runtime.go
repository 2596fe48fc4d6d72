package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/internal/queue"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/maheshrc27/skyqueue/internal/service"
	"github.com/maheshrc27/skyqueue/pkg/credman"
	"github.com/maheshrc27/skyqueue/pkg/logger"
	"github.com/maheshrc27/skyqueue/pkg/utils"
)

// runtime holds everything a command needs, wired from the config.
type runtime struct {
	cfg  *config.Config
	db   *sql.DB
	ring *logger.Ring

	bsky     service.BlueskyService
	auth     service.AuthService
	settings service.SettingsService
	posts    service.PostService
	queue    *queue.Queue

	local *queue.LocalAlarms
	asynq *queue.AsynqAlarms
}

// newRuntime opens the store and builds the services. With localAlarms set
// the asynq backend is never used, whatever the config says.
func newRuntime(ctx context.Context, cfg *config.Config, ring *logger.Ring, localAlarms bool) (*runtime, error) {
	// picked before any ephemeral key exists, so stored passwords stay readable
	vault := newVault(cfg)
	if cfg.SecretKey == "" {
		key, err := utils.GenerateRandomKey(32)
		if err != nil {
			return nil, err
		}
		slog.Warn("SECRET_KEY is not set; dashboard sessions will not survive a restart")
		cfg.SecretKey = key
	}

	db, err := repository.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	kv := repository.NewKVRepository(db, cfg.DatabaseDriver)
	optionsRepo := repository.NewOptionsRepository(kv, cfg.DefaultService)
	if err := optionsRepo.InitDefaults(ctx); err != nil {
		db.Close()
		return nil, err
	}
	credsRepo := repository.NewCredentialsRepository(kv, vault)
	queueRepo := repository.NewQueueRepository(kv)

	staging, err := newStaging(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	bsky := service.NewBlueskyService(httpClient, credsRepo, optionsRepo, cfg.RateLimit)
	media := service.NewMediaService(service.MediaLimits{}, service.NewFFmpegTranscoder(cfg.FFmpegPath))
	posts := service.NewPostService(bsky, media, staging)

	rt := &runtime{
		cfg:      cfg,
		db:       db,
		ring:     ring,
		bsky:     bsky,
		auth:     service.NewAuthService(bsky, credsRepo, optionsRepo),
		settings: service.NewSettingsService(optionsRepo, bsky),
		posts:    posts,
	}

	var alarms queue.Alarms
	if cfg.AlarmBackend == config.AlarmBackendAsynq && !localAlarms {
		rt.asynq = queue.NewAsynqAlarms(asynq.RedisClientOpt{Addr: cfg.RedisURI})
		alarms = rt.asynq
	} else {
		rt.local = queue.NewLocalAlarms()
		alarms = rt.local
	}

	rt.queue = queue.NewQueue(queueRepo, optionsRepo, posts, alarms, service.NewNotifier(cfg.SMTP), queue.Config{
		RetryDelay: cfg.RetryDelay,
	})
	if rt.local != nil {
		rt.local.SetFireFunc(rt.queue.HandleAlarm)
	}
	return rt, nil
}

func newVault(cfg *config.Config) credman.Vault {
	switch {
	case cfg.CredentialBackend == config.CredentialBackendKeyring:
		return credman.NewKeyringVault()
	case cfg.SecretKey != "":
		return credman.NewCipherVault(cfg.SecretKey)
	}
	slog.Warn("no SECRET_KEY or keyring configured; the app password is stored unencrypted")
	return credman.PlainVault{}
}

func newStaging(ctx context.Context, cfg *config.Config) (service.MediaStaging, error) {
	if !cfg.R2.Enabled() {
		return service.NewInlineStaging(), nil
	}
	client, err := service.NewR2Client(ctx, cfg.R2)
	if err != nil {
		return nil, fmt.Errorf("r2 client: %w", err)
	}
	slog.Info("staging media in R2", "bucket", cfg.R2.BucketName)
	return service.NewR2Service(client, cfg.R2.BucketName), nil
}

func (rt *runtime) Close() {
	if rt.asynq != nil {
		if err := rt.asynq.Close(); err != nil {
			slog.Info(err.Error())
		}
	}
	if err := rt.db.Close(); err != nil {
		slog.Info(err.Error())
	}
}
