package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/pkg/utils"
)

const testAlarmText = "TEST - scheduled post working!"

// Schedule adds one entry per accepted time on date. Times that do not parse
// or are not in the future are skipped. It returns how many entries were
// created.
func (q *Queue) Schedule(ctx context.Context, text string, media []models.MediaAttachment, date string, times []string) (int, error) {
	now := q.now()

	var entries []models.ScheduledPost
	for _, clock := range times {
		clock = strings.TrimSpace(clock)
		when, ok := utils.ParseDateTimeLocal(date, clock, q.loc)
		if !ok {
			slog.Warn("skipping invalid time", "date", date, "time", clock)
			continue
		}
		if !when.After(now) {
			slog.Warn("skipping past time", "date", date, "time", clock, "when", when.Format(time.RFC3339))
			continue
		}

		id, err := q.newID()
		if err != nil {
			return 0, err
		}
		entries = append(entries, models.ScheduledPost{
			ID:       id,
			When:     when.UnixMilli(),
			Text:     text,
			MediaRaw: media,
		})
	}

	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: no valid future time in %q on %s (now %s)",
			models.ErrValidation, times, date, now.In(q.loc).Format("2006-01-02 15:04"))
	}

	if err := q.add(ctx, entries...); err != nil {
		return 0, err
	}

	slog.Info("posts scheduled", "count", len(entries), "media", len(media))
	return len(entries), nil
}

func (q *Queue) add(ctx context.Context, entries ...models.ScheduledPost) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.repo.Append(ctx, entries...); err != nil {
		return err
	}
	for _, e := range entries {
		// the entry is persisted; Reconcile picks it up if arming fails
		if err := q.armLocked(ctx, e.ID, e.Time()); err != nil {
			slog.Error("failed to arm alarm", "id", e.ID, "error", err)
		}
	}
	return nil
}

// armLocked replaces the entry's alarm with a fresh one at at. q.mu must be
// held.
func (q *Queue) armLocked(ctx context.Context, id string, at time.Time) error {
	if cur, ok := q.timers[id]; ok {
		if err := q.alarms.Disarm(ctx, cur.handle); err != nil {
			slog.Warn("failed to disarm alarm", "handle", cur.handle, "error", err)
		}
		delete(q.timers, id)
	}

	q.seq++
	h := newHandle(id, q.now(), q.seq)
	if err := q.alarms.Arm(ctx, h, id, at); err != nil {
		return err
	}
	q.timers[id] = armed{handle: h, at: at}
	return nil
}

func (q *Queue) List(ctx context.Context) ([]models.ScheduledPost, error) {
	posts, err := q.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].When < posts[j].When })
	return posts, nil
}

// CancelAll drops every alarm and empties the queue. It returns the number
// of entries removed.
func (q *Queue) CancelAll(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, cur := range q.timers {
		if err := q.alarms.Disarm(ctx, cur.handle); err != nil {
			slog.Warn("failed to disarm alarm", "handle", cur.handle, "error", err)
		}
		delete(q.timers, id)
	}
	if orphans, err := q.alarms.DisarmAll(ctx); err != nil {
		slog.Warn("failed to drop backend alarms", "error", err)
	} else if orphans > 0 {
		slog.Info("dropped untracked alarms", "count", orphans)
	}

	posts, err := q.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	n, err := q.repo.Clear(ctx)
	if err != nil {
		return 0, err
	}
	var media []models.MediaAttachment
	for _, p := range posts {
		media = append(media, p.MediaRaw...)
	}
	q.publisher.ReleaseMedia(ctx, distinctPayloads(media, nil))

	slog.Info("queue cleared", "count", n)
	return n, nil
}

// Reconcile arms an alarm for every persisted entry that has none. Entries
// already due fire right away. It returns how many alarms were armed.
func (q *Queue) Reconcile(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	posts, err := q.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	now := q.now()
	n := 0
	for _, p := range posts {
		if _, ok := q.timers[p.ID]; ok {
			continue
		}
		if _, ok := q.publishing[p.ID]; ok {
			continue
		}
		at := p.Time()
		if at.Before(now) {
			at = now
		}
		if err := q.armLocked(ctx, p.ID, at); err != nil {
			slog.Error("failed to arm alarm", "id", p.ID, "error", err)
			continue
		}
		n++
	}

	if n > 0 {
		slog.Info("queue reconciled", "armed", n, "entries", len(posts))
	}
	return n, nil
}

// TestAlarm queues a text-only post a short while from now.
func (q *Queue) TestAlarm(ctx context.Context) (*models.ScheduledPost, error) {
	id, err := q.newID()
	if err != nil {
		return nil, err
	}
	post := models.ScheduledPost{
		ID:       "test-" + id,
		When:     q.now().Add(testAlarmDelay).UnixMilli(),
		Text:     testAlarmText,
		MediaRaw: []models.MediaAttachment{},
	}
	if err := q.add(ctx, post); err != nil {
		return nil, err
	}

	slog.Info("test alarm armed", "id", post.ID, "when", post.Time().In(q.loc).Format(time.RFC3339))
	return &post, nil
}

func (q *Queue) Debug(ctx context.Context) (*models.QueueDebug, error) {
	posts, err := q.List(ctx)
	if err != nil {
		return nil, err
	}

	now := q.now()
	debug := &models.QueueDebug{
		CurrentTime: now.In(q.loc).Format(time.RFC3339),
		Timestamp:   now.UnixMilli(),
		Alarms:      []models.AlarmInfo{},
		Queue:       make([]models.PostQueueItem, 0, len(posts)),
	}

	q.mu.Lock()
	for id, cur := range q.timers {
		debug.Alarms = append(debug.Alarms, models.AlarmInfo{
			EntryID:        id,
			Handle:         string(cur.handle),
			ScheduledTime:  cur.at.In(q.loc).Format(time.RFC3339),
			Timestamp:      cur.at.UnixMilli(),
			MinutesFromNow: int64(cur.at.Sub(now).Round(time.Minute) / time.Minute),
			IsPast:         !cur.at.After(now),
		})
	}
	q.mu.Unlock()
	sort.Slice(debug.Alarms, func(i, j int) bool { return debug.Alarms[i].Timestamp < debug.Alarms[j].Timestamp })

	for _, p := range posts {
		at := p.Time()
		debug.Queue = append(debug.Queue, models.PostQueueItem{
			ID:             p.ID,
			When:           at.In(q.loc).Format(time.RFC3339),
			Timestamp:      p.When,
			Text:           truncate(p.Text, 50),
			MediaCount:     len(p.MediaRaw),
			MinutesFromNow: int64(at.Sub(now).Round(time.Minute) / time.Minute),
			IsPast:         !at.After(now),
		})
	}
	return debug, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
