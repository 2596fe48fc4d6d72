package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/skyqueue/internal/models"
)

const DefaultCapacity = 20

// Ring keeps the most recent log records for the activity view.
type Ring struct {
	mu       sync.Mutex
	entries  []models.LogEntry
	capacity int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

func (r *Ring) add(e models.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]models.LogEntry{e}, r.entries...)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[:r.capacity]
	}
}

// Entries returns a copy, newest first.
func (r *Ring) Entries() []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Handler wraps next so that every record at info level or above is also
// kept in the ring.
func (r *Ring) Handler(next slog.Handler) slog.Handler {
	return &ringHandler{ring: r, next: next}
}

type ringHandler struct {
	ring   *Ring
	next   slog.Handler
	attrs  []slog.Attr
	groups []string
}

func (h *ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *ringHandler) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= slog.LevelInfo {
		h.ring.add(h.entry(rec))
	}
	if !h.next.Enabled(ctx, rec.Level) {
		return nil
	}
	return h.next.Handle(ctx, rec)
}

func (h *ringHandler) entry(rec slog.Record) models.LogEntry {
	var msg strings.Builder
	msg.WriteString(rec.Message)

	prefix := strings.Join(h.groups, ".")
	write := func(a slog.Attr) {
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		fmt.Fprintf(&msg, " %s=%v", key, a.Value.Resolve())
	}
	for _, a := range h.attrs {
		write(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.LogEntry{
		Type:      strings.ToLower(rec.Level.String()),
		Message:   msg.String(),
		Timestamp: ts.Format(time.RFC3339),
	}
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringHandler{
		ring:   h.ring,
		next:   h.next.WithAttrs(attrs),
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups: h.groups,
	}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	return &ringHandler{
		ring:   h.ring,
		next:   h.next.WithGroup(name),
		attrs:  h.attrs,
		groups: append(append([]string{}, h.groups...), name),
	}
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Setup installs a text logger on w as the slog default and returns the ring
// that mirrors it.
func Setup(w io.Writer, level string) *Ring {
	ring := NewRing(DefaultCapacity)
	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	slog.SetDefault(slog.New(ring.Handler(base)))
	return ring
}
