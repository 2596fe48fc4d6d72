package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlarm struct {
	handle  Handle
	entryID string
	at      time.Time
}

type fakeAlarms struct {
	mu       sync.Mutex
	armed    map[Handle]fakeAlarm
	disarmed []Handle
	orphans  int
}

func newFakeAlarms() *fakeAlarms {
	return &fakeAlarms{armed: make(map[Handle]fakeAlarm)}
}

func (f *fakeAlarms) Arm(_ context.Context, h Handle, entryID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[h] = fakeAlarm{handle: h, entryID: entryID, at: at}
	return nil
}

func (f *fakeAlarms) Disarm(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, h)
	f.disarmed = append(f.disarmed, h)
	return nil
}

func (f *fakeAlarms) DisarmAll(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.armed) + f.orphans
	f.armed = make(map[Handle]fakeAlarm)
	f.orphans = 0
	return n, nil
}

// fire drops the alarm the way a backend does before delivering it.
func (f *fixture) fire(h Handle) {
	f.alarms.mu.Lock()
	a, ok := f.alarms.armed[h]
	delete(f.alarms.armed, h)
	f.alarms.mu.Unlock()
	if !ok {
		a.entryID = entryOf(h)
	}
	f.queue.HandleAlarm(context.Background(), a.entryID, h)
}

func entryOf(h Handle) string {
	s := strings.TrimPrefix(string(h), "post:")
	return s[:strings.LastIndex(s, ":")]
}

func (f *fakeAlarms) forEntry(id string) []fakeAlarm {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeAlarm
	for _, a := range f.armed {
		if a.entryID == id {
			out = append(out, a)
		}
	}
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	published []string
	released  int
}

func (p *fakePublisher) PublishScheduled(_ context.Context, post *models.ScheduledPost) (*models.RecordRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.published = append(p.published, post.ID)
	return &models.RecordRef{URI: "at://did:plc:test/app.bsky.feed.post/" + post.ID, CID: "cid"}, nil
}

func (p *fakePublisher) ReleaseMedia(_ context.Context, media []models.MediaAttachment) {
	p.mu.Lock()
	p.released += len(media)
	p.mu.Unlock()
}

type fakeNotifier struct {
	titles []string
}

func (n *fakeNotifier) Notify(_ context.Context, title, _ string) error {
	n.titles = append(n.titles, title)
	return nil
}

type fixture struct {
	queue     *Queue
	repo      repository.QueueRepository
	opts      repository.OptionsRepository
	alarms    *fakeAlarms
	publisher *fakePublisher
	notifier  *fakeNotifier
	now       time.Time
	ids       int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := repository.OpenDatabase(config.DriverSQLite, filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv := repository.NewKVRepository(db, config.DriverSQLite)
	f := &fixture{
		repo:      repository.NewQueueRepository(kv),
		opts:      repository.NewOptionsRepository(kv, "https://bsky.social"),
		alarms:    newFakeAlarms(),
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.opts.InitDefaults(context.Background()))

	f.queue = f.newQueue(f.repo, f.publisher)
	return f
}

func (f *fixture) newQueue(repo repository.QueueRepository, publisher Publisher) *Queue {
	return NewQueue(repo, f.opts, publisher, f.alarms, f.notifier, Config{
		RetryDelay: 5 * time.Minute,
		Location:   time.UTC,
		Now:        func() time.Time { return f.now },
		NewID: func() (string, error) {
			f.ids++
			return fmt.Sprintf("id%d", f.ids), nil
		},
	})
}

func TestScheduleSkipsPastTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.queue.Schedule(ctx, "hello", nil, "2026-03-10", []string{"09:00", "13:00", "bogus", "1830"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	posts, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC).UnixMilli(), posts[0].When)
	assert.Equal(t, time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC).UnixMilli(), posts[1].When)

	for _, p := range posts {
		alarms := f.alarms.forEntry(p.ID)
		require.Len(t, alarms, 1)
		assert.Equal(t, p.Time(), alarms[0].at)
	}
}

func TestScheduleAllPastPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Schedule(ctx, "hello", nil, "2026-03-10", []string{"08:00", "11:59"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))

	posts, err := f.queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Empty(t, f.alarms.armed)
}

func TestListIsSortedAcrossSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Schedule(ctx, "late", nil, "2026-03-11", []string{"10:00"})
	require.NoError(t, err)
	_, err = f.queue.Schedule(ctx, "early", nil, "2026-03-10", []string{"23:00", "14:15"})
	require.NoError(t, err)

	posts, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	for i := 1; i < len(posts); i++ {
		assert.LessOrEqual(t, posts[i-1].When, posts[i].When)
	}
	assert.Equal(t, "late", posts[2].Text)
}

func TestOnTimerFiredPublishesAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	media := []models.MediaAttachment{{Name: "a.jpg", MimeType: "image/jpeg", Payload: "data:image/jpeg;base64,AAAA"}}
	_, err := f.queue.Schedule(ctx, "hello", media, "2026-03-10", []string{"13:00"})
	require.NoError(t, err)

	require.NoError(t, f.queue.OnTimerFired(ctx, "id1"))

	assert.Equal(t, []string{"id1"}, f.publisher.published)
	assert.Equal(t, 1, f.publisher.released)
	assert.Equal(t, []string{notifyTitle}, f.notifier.titles)
	assert.Empty(t, f.alarms.forEntry("id1"))

	posts, err := f.queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestOnTimerFiredSkipsNotificationWhenDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.opts.Update(ctx, &models.Options{Notify: false}))

	_, err := f.queue.Schedule(ctx, "hello", nil, "2026-03-10", []string{"13:00"})
	require.NoError(t, err)
	require.NoError(t, f.queue.OnTimerFired(ctx, "id1"))

	assert.Len(t, f.publisher.published, 1)
	assert.Empty(t, f.notifier.titles)
}

func TestOnTimerFiredMissingEntryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queue.OnTimerFired(ctx, "nope"))
	assert.Empty(t, f.publisher.published)
	assert.Empty(t, f.alarms.armed)
}

func TestFailedPublishRearmsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Schedule(ctx, "hello", nil, "2026-03-10", []string{"13:00"})
	require.NoError(t, err)
	first := f.alarms.forEntry("id1")
	require.Len(t, first, 1)

	f.publisher.err = fmt.Errorf("%w: 502", models.ErrPublish)
	f.now = time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

	f.fire(first[0].handle)

	alarms := f.alarms.forEntry("id1")
	require.Len(t, alarms, 1)
	assert.Equal(t, f.now.Add(5*time.Minute), alarms[0].at)
	assert.NotEqual(t, first[0].handle, alarms[0].handle)

	posts, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "id1", posts[0].ID)

	// a second failure still leaves exactly one alarm
	f.now = f.now.Add(5 * time.Minute)
	f.fire(alarms[0].handle)
	assert.Len(t, f.alarms.forEntry("id1"), 1)

	f.publisher.err = nil
	f.fire(f.alarms.forEntry("id1")[0].handle)
	assert.Equal(t, []string{"id1"}, f.publisher.published)
	assert.Empty(t, f.alarms.forEntry("id1"))
}

func TestStaleAlarmIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.Schedule(ctx, "hello", nil, "2026-03-10", []string{"13:00"})
	require.NoError(t, err)

	f.fire(Handle("post:id1:0-0"))
	assert.Empty(t, f.publisher.published)

	posts, err := f.queue.List(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Len(t, f.alarms.forEntry("id1"), 1)
}

func TestCancelAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.alarms.orphans = 2

	media := []models.MediaAttachment{{Name: "a.png", MimeType: "image/png", Payload: "data:image/png;base64,AAAA"}}
	_, err := f.queue.Schedule(ctx, "hello", media, "2026-03-10", []string{"13:00", "14:00", "15:00"})
	require.NoError(t, err)

	n, err := f.queue.CancelAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, f.alarms.armed)
	// the three entries share one attachment
	assert.Equal(t, 1, f.publisher.released)

	posts, err := f.queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)

	debug, err := f.queue.Debug(ctx)
	require.NoError(t, err)
	assert.Empty(t, debug.Alarms)
}

func TestReconcileArmsPersistedEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Append(ctx,
		models.ScheduledPost{ID: "old", When: f.now.Add(-time.Hour).UnixMilli(), Text: "missed"},
		models.ScheduledPost{ID: "new", When: f.now.Add(time.Hour).UnixMilli(), Text: "later"},
	))

	n, err := f.queue.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	old := f.alarms.forEntry("old")
	require.Len(t, old, 1)
	assert.Equal(t, f.now, old[0].at)
	require.Len(t, f.alarms.forEntry("new"), 1)

	// already armed entries are left alone
	n, err = f.queue.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.alarms.forEntry("old"), 1)
}

func TestTestAlarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post, err := f.queue.TestAlarm(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(30*time.Second).UnixMilli(), post.When)
	assert.Equal(t, "test-id1", post.ID)

	debug, err := f.queue.Debug(ctx)
	require.NoError(t, err)
	require.Len(t, debug.Queue, 1)
	require.Len(t, debug.Alarms, 1)
	assert.Equal(t, post.ID, debug.Alarms[0].EntryID)
	assert.False(t, debug.Queue[0].IsPast)
	assert.EqualValues(t, 1, debug.Queue[0].MinutesFromNow)
}

func TestLocalAlarmsFire(t *testing.T) {
	alarms := NewLocalAlarms()
	fired := make(chan Handle, 1)
	alarms.SetFireFunc(func(_ context.Context, entryID string, h Handle) {
		assert.Equal(t, "e1", entryID)
		fired <- h
	})

	h := newHandle("e1", time.Now(), 1)
	require.NoError(t, alarms.Arm(context.Background(), h, "e1", time.Now().Add(10*time.Millisecond)))

	select {
	case got := <-fired:
		assert.Equal(t, h, got)
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire")
	}
	assert.Zero(t, alarms.Len())
}

func TestLocalAlarmsDisarm(t *testing.T) {
	alarms := NewLocalAlarms()
	alarms.SetFireFunc(func(context.Context, string, Handle) {
		t.Error("disarmed alarm fired")
	})

	ctx := context.Background()
	h1 := newHandle("e1", time.Now(), 1)
	h2 := newHandle("e2", time.Now(), 2)
	require.NoError(t, alarms.Arm(ctx, h1, "e1", time.Now().Add(time.Hour)))
	require.NoError(t, alarms.Arm(ctx, h2, "e2", time.Now().Add(time.Hour)))

	require.NoError(t, alarms.Disarm(ctx, h1))
	assert.Equal(t, 1, alarms.Len())

	n, err := alarms.DisarmAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, alarms.Len())
}
