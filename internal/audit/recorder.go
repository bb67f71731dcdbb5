package audit

import (
	"context"
	"log/slog"
)

// RecorderBufferSize is the number of entries queued before Record drops.
const RecorderBufferSize = 256

// Recorder writes audit entries asynchronously and serially, keeping
// audit writes off the request path. Entries are best-effort: a full
// queue drops the entry with a warning.
type Recorder struct {
	repo   Repository
	ch     chan *AuditLog
	logger *slog.Logger
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		repo:   repo,
		ch:     make(chan *AuditLog, RecorderBufferSize),
		logger: logger,
	}
}

// Record enqueues an entry. It never blocks. A nil Recorder is a no-op.
func (r *Recorder) Record(entry *AuditLog) {
	if r == nil || entry == nil {
		return
	}
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit log channel full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left before returning.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *AuditLog) {
	// The request context may already be gone; the write must still land.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
