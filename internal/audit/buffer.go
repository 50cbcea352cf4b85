package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lattice-backend/internal/store"
)

// Buffer collects entries in memory and periodically flushes them to the
// _activity table in a batch insert.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	store   *store.Store
	logger  zerolog.Logger
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

// NewBuffer creates a buffer that flushes on a timer or when full.
func NewBuffer(st *store.Store, logger zerolog.Logger, maxSize int, flushInterval time.Duration) *Buffer {
	b := &Buffer{
		store:   st,
		logger:  logger,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	b.ticker = time.NewTicker(flushInterval)
	go b.run()
	return b
}

func (b *Buffer) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.Flush()
		}
	}
}

// Record adds an entry. If the buffer is full, a flush is triggered
// asynchronously.
func (b *Buffer) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	b.entries = append(b.entries, e)
	shouldFlush := len(b.entries) >= b.maxSize
	b.mu.Unlock()
	if shouldFlush {
		go b.Flush()
	}
}

// Flush writes all buffered entries in a single batch insert.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.entries
	b.entries = nil
	b.mu.Unlock()

	pb := b.store.Dialect.NewParamBuilder()
	rows := make([]string, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, fmt.Sprintf("(%s, %s, %s, %s, %s)",
			pb.Add(e.Entity), pb.Add(e.Action), pb.Add(e.RecordID), pb.Add(e.ActorID), pb.Add(e.At)))
	}
	sql := "INSERT INTO _activity (entity, action, record_id, actor_id, occurred_at) VALUES " +
		strings.Join(rows, ", ")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Exec(ctx, b.store.DB, sql, pb.Params()...); err != nil {
		b.logger.Error().Err(err).Int("entries", len(batch)).Msg("audit flush failed")
	}
}

// Close stops the timer and flushes what remains.
func (b *Buffer) Close() {
	b.ticker.Stop()
	close(b.done)
	b.Flush()
}
