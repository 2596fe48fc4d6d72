package queue

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/repository"
	"github.com/maheshrc27/skyqueue/internal/service"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultRetryDelay = 5 * time.Minute
	testAlarmDelay    = 30 * time.Second
)

// Publisher sends a scheduled entry to the remote service.
type Publisher interface {
	PublishScheduled(ctx context.Context, post *models.ScheduledPost) (*models.RecordRef, error)
	ReleaseMedia(ctx context.Context, media []models.MediaAttachment)
}

type Config struct {
	// RetryDelay is how long a failed entry waits before the next attempt.
	RetryDelay time.Duration
	// Location resolves schedule dates and times. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
	NewID    func() (string, error)
}

// armed is the single live alarm of an entry.
type armed struct {
	handle Handle
	at     time.Time
}

// Queue is the persisted list of pending posts plus the alarms that wake
// them up. Each entry is Pending (alarm armed), Publishing, or gone.
type Queue struct {
	repo      repository.QueueRepository
	opts      repository.OptionsRepository
	publisher Publisher
	alarms    Alarms
	notifier  service.Notifier

	retryDelay time.Duration
	loc        *time.Location
	now        func() time.Time
	newID      func() (string, error)

	// mu guards storage mutations, timers and publishing
	mu         sync.Mutex
	timers     map[string]armed
	publishing map[string]struct{}
	seq        uint64

	// fireMu keeps fires from overlapping each other
	fireMu sync.Mutex
}

func NewQueue(
	repo repository.QueueRepository,
	opts repository.OptionsRepository,
	publisher Publisher,
	alarms Alarms,
	notifier service.Notifier,
	cfg Config) *Queue {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() (string, error) { return gonanoid.New() }
	}
	if notifier == nil {
		notifier = service.LogNotifier{}
	}
	return &Queue{
		repo:       repo,
		opts:       opts,
		publisher:  publisher,
		alarms:     alarms,
		notifier:   notifier,
		retryDelay: cfg.RetryDelay,
		loc:        cfg.Location,
		now:        cfg.Now,
		newID:      cfg.NewID,
		timers:     make(map[string]armed),
		publishing: make(map[string]struct{}),
	}
}
