package repository

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/pkg/credman"
)

type CredentialsRepository interface {
	// Get returns nil when no credentials were saved.
	Get(ctx context.Context) (*models.Credentials, error)
	Save(ctx context.Context, creds *models.Credentials) error
	Delete(ctx context.Context) error
}

type credentialsRepository struct {
	kv    KVRepository
	vault credman.Vault
}

func NewCredentialsRepository(kv KVRepository, vault credman.Vault) CredentialsRepository {
	return &credentialsRepository{kv: kv, vault: vault}
}

func (r *credentialsRepository) Get(ctx context.Context) (*models.Credentials, error) {
	var stored models.Credentials
	found, err := r.kv.Get(ctx, KeyAuth, &stored)
	if err != nil || !found {
		return nil, err
	}

	password, err := r.vault.Open(stored.Identifier, stored.Password)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &models.Credentials{Identifier: stored.Identifier, Password: password}, nil
}

func (r *credentialsRepository) Save(ctx context.Context, creds *models.Credentials) error {
	sealed, err := r.vault.Seal(creds.Identifier, creds.Password)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return r.kv.Set(ctx, KeyAuth, models.Credentials{Identifier: creds.Identifier, Password: sealed})
}

func (r *credentialsRepository) Delete(ctx context.Context) error {
	var stored models.Credentials
	found, err := r.kv.Get(ctx, KeyAuth, &stored)
	if err != nil {
		return err
	}
	if found {
		if err := r.vault.Forget(stored.Identifier); err != nil {
			slog.Info(err.Error())
		}
	}
	return r.kv.Delete(ctx, KeyAuth)
}
