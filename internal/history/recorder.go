package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"budwatch/internal/podstate"
)

// DefaultQueueSize is the number of statuses a Recorder buffers before it
// starts dropping them.
const DefaultQueueSize = 256

type pendingEntry struct {
	sessionID string
	at        time.Time
	status    podstate.DeviceStatus
}

// Recorder journals statuses from a tracker callback without doing disk
// I/O on the caller's goroutine. Entries are written in the order they were
// handled; when the queue is full new entries are dropped and counted.
type Recorder struct {
	store     *Store
	sessionID func() string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	started bool
	closed  bool
	queue   chan pendingEntry
	done    chan struct{}

	dropped atomic.Uint64
}

// NewRecorder creates a recorder writing to store. sessionID is called for
// every status to tag it with the current scan session. Call Start to begin
// writing and Close to flush.
func NewRecorder(store *Store, sessionID func() string, logger *slog.Logger) *Recorder {
	return newRecorder(store, sessionID, logger, DefaultQueueSize)
}

func newRecorder(store *Store, sessionID func() string, logger *slog.Logger, size int) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:     store,
		sessionID: sessionID,
		logger:    logger,
		now:       time.Now,
		queue:     make(chan pendingEntry, size),
		done:      make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run()
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.store.recordAt(context.Background(), e.sessionID, e.at, e.status); err != nil {
			r.logger.Warn("history record failed", "error", err)
		}
	}
}

// HandleStatus is a tracker callback. It never blocks.
func (r *Recorder) HandleStatus(status podstate.DeviceStatus) {
	e := pendingEntry{sessionID: r.sessionID(), at: r.now(), status: status}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("history queue full, dropping status", "dropped", n)
	}
}

// Dropped returns the number of statuses dropped because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting statuses and waits until the queued ones are
// written. It does not close the store.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.done
	}
}
