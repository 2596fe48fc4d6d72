package repository

import (
	"context"
	"sort"

	"github.com/maheshrc27/skyqueue/internal/models"
)

type QueueRepository interface {
	List(ctx context.Context) ([]models.ScheduledPost, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	Append(ctx context.Context, posts ...models.ScheduledPost) error
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) (int, error)
}

type queueRepository struct {
	kv KVRepository
}

func NewQueueRepository(kv KVRepository) QueueRepository {
	return &queueRepository{kv: kv}
}

func (r *queueRepository) List(ctx context.Context) ([]models.ScheduledPost, error) {
	var queue []models.ScheduledPost
	if _, err := r.kv.Get(ctx, KeyQueue, &queue); err != nil {
		return nil, err
	}
	if queue == nil {
		queue = []models.ScheduledPost{}
	}
	return queue, nil
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	queue, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range queue {
		if queue[i].ID == id {
			return &queue[i], nil
		}
	}
	return nil, nil
}

func (r *queueRepository) Append(ctx context.Context, posts ...models.ScheduledPost) error {
	queue, err := r.List(ctx)
	if err != nil {
		return err
	}
	queue = append(queue, posts...)
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].When < queue[j].When })
	return r.kv.Set(ctx, KeyQueue, queue)
}

func (r *queueRepository) Remove(ctx context.Context, id string) error {
	queue, err := r.List(ctx)
	if err != nil {
		return err
	}
	kept := queue[:0]
	for _, p := range queue {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return r.kv.Set(ctx, KeyQueue, kept)
}

func (r *queueRepository) Clear(ctx context.Context) (int, error) {
	queue, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.kv.Set(ctx, KeyQueue, []models.ScheduledPost{}); err != nil {
		return 0, err
	}
	return len(queue), nil
}
