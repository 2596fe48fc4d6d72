package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
)

type AuthService interface {
	// Login checks the app password against the configured service and
	// stores it for later scheduled posts.
	Login(ctx context.Context, identifier, password string) (*models.Session, error)
	Logout(ctx context.Context) error
	EnsureLoggedIn(ctx context.Context) (*models.Session, error)
}

type authService struct {
	bsky  BlueskyService
	creds repository.CredentialsRepository
	opts  repository.OptionsRepository
}

func NewAuthService(bsky BlueskyService, creds repository.CredentialsRepository, opts repository.OptionsRepository) AuthService {
	return &authService{
		bsky:  bsky,
		creds: creds,
		opts:  opts,
	}
}

func (s *authService) Login(ctx context.Context, identifier, password string) (*models.Session, error) {
	creds := &models.Credentials{
		Identifier: strings.TrimPrefix(strings.TrimSpace(identifier), "@"),
		Password:   strings.TrimSpace(password),
	}
	if !creds.Complete() {
		return nil, fmt.Errorf("%w: identifier and app password are required", models.ErrValidation)
	}

	opts, err := s.opts.Get(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.bsky.Login(ctx, creds.Identifier, creds.Password, opts.Service)
	if err != nil {
		return nil, err
	}

	if err := s.creds.Save(ctx, creds); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return session, nil
}

func (s *authService) Logout(ctx context.Context) error {
	s.bsky.Logout()
	return s.creds.Delete(ctx)
}

func (s *authService) EnsureLoggedIn(ctx context.Context) (*models.Session, error) {
	return s.bsky.EnsureSession(ctx)
}
