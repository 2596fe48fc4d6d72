package repository

import (
	"context"

	"github.com/maheshrc27/skyqueue/internal/models"
)

type OptionsRepository interface {
	Get(ctx context.Context) (*models.Options, error)
	Update(ctx context.Context, opts *models.Options) error
	// InitDefaults writes the queue and options keys if they are missing.
	InitDefaults(ctx context.Context) error
}

type optionsRepository struct {
	kv             KVRepository
	defaultService string
}

func NewOptionsRepository(kv KVRepository, defaultService string) OptionsRepository {
	return &optionsRepository{kv: kv, defaultService: defaultService}
}

func (r *optionsRepository) Get(ctx context.Context) (*models.Options, error) {
	opts := models.Options{Service: r.defaultService, Notify: true}
	if _, err := r.kv.Get(ctx, KeyOptions, &opts); err != nil {
		return nil, err
	}
	if opts.Service == "" {
		opts.Service = r.defaultService
	}
	return &opts, nil
}

func (r *optionsRepository) Update(ctx context.Context, opts *models.Options) error {
	if opts.Service == "" {
		opts.Service = r.defaultService
	}
	return r.kv.Set(ctx, KeyOptions, opts)
}

func (r *optionsRepository) InitDefaults(ctx context.Context) error {
	var queue []models.ScheduledPost
	found, err := r.kv.Get(ctx, KeyQueue, &queue)
	if err != nil {
		return err
	}
	if !found {
		if err := r.kv.Set(ctx, KeyQueue, []models.ScheduledPost{}); err != nil {
			return err
		}
	}

	var opts models.Options
	found, err = r.kv.Get(ctx, KeyOptions, &opts)
	if err != nil {
		return err
	}
	if !found {
		return r.kv.Set(ctx, KeyOptions, models.Options{Service: r.defaultService, Notify: true})
	}
	return nil
}
