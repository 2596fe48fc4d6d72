package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/maheshrc27/skyqueue/internal/transfer"
)

type SettingsService interface {
	GetOptions(ctx context.Context) (*models.Options, error)
	UpdateOptions(ctx context.Context, update transfer.OptionsUpdate) (*models.Options, error)
}

type settingsService struct {
	or   repository.OptionsRepository
	bsky BlueskyService
}

func NewSettingsService(or repository.OptionsRepository, bsky BlueskyService) SettingsService {
	return &settingsService{
		or:   or,
		bsky: bsky,
	}
}

func (s *settingsService) GetOptions(ctx context.Context) (*models.Options, error) {
	return s.or.Get(ctx)
}

func (s *settingsService) UpdateOptions(ctx context.Context, update transfer.OptionsUpdate) (*models.Options, error) {
	opts, err := s.or.Get(ctx)
	if err != nil {
		return nil, err
	}

	if svc := strings.TrimRight(strings.TrimSpace(update.Service), "/"); svc != "" {
		u, err := url.Parse(svc)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, fmt.Errorf("%w: service must be an http(s) URL", models.ErrValidation)
		}
		if svc != strings.TrimRight(opts.Service, "/") {
			// the cached session belongs to the old endpoint
			s.bsky.Logout()
		}
		opts.Service = svc
	}
	if update.Notify != nil {
		opts.Notify = *update.Notify
	}

	if err := s.or.Update(ctx, opts); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return opts, nil
}
