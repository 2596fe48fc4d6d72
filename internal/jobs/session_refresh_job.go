package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/skyqueue/internal/service"
)

const jobTimeout = 2 * time.Minute

type SessionRefreshJob struct {
	bsky service.BlueskyService
}

func NewSessionRefreshJob(bsky service.BlueskyService) *SessionRefreshJob {
	return &SessionRefreshJob{bsky: bsky}
}

// RefreshSession keeps the cached session alive between scheduled posts.
// Without a session there is nothing to do.
func (j *SessionRefreshJob) RefreshSession() {
	if j.bsky.CurrentSession() == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	j.bsky.RefreshIfPossible(ctx)
	slog.Debug("session refresh job ran")
}
