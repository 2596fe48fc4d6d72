package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/maheshrc27/skyqueue/internal/models"
)

const (
	notifyTitle   = "Post published"
	notifyMessage = "Your scheduled post was published on Bluesky."
)

// HandleAlarm is the entry point for alarm backends. Fires carrying a handle
// other than the entry's current one are ignored. Publish errors are logged
// and the entry is re-armed; nothing is returned.
func (q *Queue) HandleAlarm(ctx context.Context, id string, h Handle) {
	q.mu.Lock()
	cur, ok := q.timers[id]
	if !ok || cur.handle != h {
		q.mu.Unlock()
		slog.Info("ignoring stale alarm", "id", id, "handle", h)
		return
	}
	delete(q.timers, id)
	q.publishing[id] = struct{}{}
	q.mu.Unlock()

	if err := q.OnTimerFired(ctx, id); err != nil {
		slog.Error("scheduled post failed", "id", id, "error", err)
	}
}

// OnTimerFired publishes entry id. A missing entry is a no-op. On failure the
// entry stays queued with one new alarm RetryDelay from now, and the publish
// error is returned.
func (q *Queue) OnTimerFired(ctx context.Context, id string) error {
	q.mu.Lock()
	q.publishing[id] = struct{}{}
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.publishing, id)
		q.mu.Unlock()
	}()

	q.fireMu.Lock()
	defer q.fireMu.Unlock()

	post, err := q.repo.GetByID(ctx, id)
	if err != nil {
		q.retry(ctx, id, err)
		return err
	}
	if post == nil {
		slog.Info("scheduled post not found", "id", id)
		return nil
	}

	slog.Info("publishing scheduled post", "id", id, "media", len(post.MediaRaw))
	ref, err := q.publisher.PublishScheduled(ctx, post)
	if err != nil {
		q.retry(ctx, id, err)
		return err
	}

	q.mu.Lock()
	if cur, ok := q.timers[id]; ok {
		// a direct fire raced a pending alarm
		if err := q.alarms.Disarm(ctx, cur.handle); err != nil {
			slog.Warn("failed to disarm alarm", "handle", cur.handle, "error", err)
		}
		delete(q.timers, id)
	}
	if err := q.repo.Remove(ctx, id); err != nil {
		q.mu.Unlock()
		slog.Error("post published but not removed from queue", "id", id, "error", err)
		return err
	}
	release, err := q.unreferencedLocked(ctx, post.MediaRaw)
	q.mu.Unlock()
	if err != nil {
		slog.Warn("staged media kept", "id", id, "error", err)
	}

	q.publisher.ReleaseMedia(ctx, release)
	slog.Info("scheduled post published", "id", id, "uri", ref.URI)

	q.notify(ctx)
	return nil
}

func (q *Queue) retry(ctx context.Context, id string, cause error) {
	sentry.CaptureException(fmt.Errorf("publish %s: %w", id, cause))

	q.mu.Lock()
	defer q.mu.Unlock()

	// cleared while publishing; on a read error arm anyway, a fire for a
	// missing entry is a no-op
	post, err := q.repo.GetByID(ctx, id)
	if err != nil {
		slog.Error("failed to read queue", "id", id, "error", err)
	} else if post == nil {
		return
	}

	at := q.now().Add(q.retryDelay)
	if err := q.armLocked(ctx, id, at); err != nil {
		slog.Error("failed to re-arm alarm", "id", id, "error", err)
		return
	}
	slog.Warn("scheduled post will be retried", "id", id, "at", at.In(q.loc).Format(time.RFC3339), "error", cause)
}

// unreferencedLocked filters media down to the payloads no queued entry still
// uses. Entries scheduled together share staged objects. q.mu must be held.
func (q *Queue) unreferencedLocked(ctx context.Context, media []models.MediaAttachment) ([]models.MediaAttachment, error) {
	if len(media) == 0 {
		return nil, nil
	}
	remaining, err := q.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return distinctPayloads(media, remaining), nil
}

// distinctPayloads returns each payload of media once, skipping payloads
// referenced by any entry of keep.
func distinctPayloads(media []models.MediaAttachment, keep []models.ScheduledPost) []models.MediaAttachment {
	seen := make(map[string]struct{})
	for _, p := range keep {
		for _, m := range p.MediaRaw {
			seen[m.Payload] = struct{}{}
		}
	}

	var out []models.MediaAttachment
	for _, m := range media {
		if _, ok := seen[m.Payload]; ok {
			continue
		}
		seen[m.Payload] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (q *Queue) notify(ctx context.Context) {
	opts, err := q.opts.Get(ctx)
	if err != nil {
		slog.Warn("could not read options", "error", err)
		return
	}
	if !opts.Notify {
		return
	}
	if err := q.notifier.Notify(ctx, notifyTitle, notifyMessage); err != nil {
		slog.Warn("notification failed", "error", err)
	}
}
