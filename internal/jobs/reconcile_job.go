package job

import (
	"context"
	"log/slog"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconcileJob re-arms queue entries whose alarm went missing, e.g. entries
// added by the CLI while the server was running.
type ReconcileJob struct {
	queue Reconciler
}

func NewReconcileJob(queue Reconciler) *ReconcileJob {
	return &ReconcileJob{queue: queue}
}

func (j *ReconcileJob) Reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := j.queue.Reconcile(ctx); err != nil {
		slog.Info(err.Error())
	}
}
