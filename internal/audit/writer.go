package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the session_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS session_events (
	conn_id     UUID        NOT NULL,
	event       TEXT        NOT NULL,
	remote_addr TEXT        NOT NULL,
	reason      TEXT        NOT NULL DEFAULT '',
	frames      BIGINT      NOT NULL DEFAULT 0,
	occurred_at TIMESTAMPTZ NOT NULL
)`

const insertEvent = `
	INSERT INTO session_events (conn_id, event, remote_addr, reason, frames, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// DB is the subset of *pgxpool.Pool used by the writer.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// EnsureSchema creates the audit table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create session_events: %w", err)
	}
	return nil
}

// Writer is a Sink that batches events into PostgreSQL.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *Buffer[Event]
	db    DB

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// flushMu serializes flushes from the loop and from Stop.
	flushMu sync.Mutex

	statsMu sync.Mutex
	stats   WriterStats
}

// NewWriter creates a writer. Call Start before recording events.
func NewWriter(cfg WriterConfig, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		logger: logger,
		input:  NewBuffer[Event](cfg.BufferSize, cfg.MaxBuffered),
		db:     db,
	}
}

// Record queues an event without blocking.
func (w *Writer) Record(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if !w.input.Send(ev) {
		w.logger.Warn("audit buffer full or closed, dropping event",
			"conn_id", ev.ConnID,
			"event", ev.Type,
		)
	}
}

// Start begins the periodic flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the flush loop and writes any queued events.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping audit writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	w.flush(ctx)
	w.logger.Info("audit writer stopped")
	return nil
}

// Stats returns current statistics.
func (w *Writer) Stats() WriterStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	s := w.stats
	s.Buffer = w.input.Stats()
	return s
}

// flushLoop periodically flushes the buffer.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes every queued event in batches of at most BatchSize.
func (w *Writer) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	for {
		events := w.input.DrainTo(w.cfg.BatchSize)
		if len(events) == 0 {
			return
		}

		start := time.Now()
		if err := w.batchInsert(ctx, events); err != nil {
			w.logger.Error("audit batch insert failed", "error", err, "count", len(events))
			w.statsMu.Lock()
			w.stats.Errors++
			w.statsMu.Unlock()
			return
		}

		w.statsMu.Lock()
		w.stats.Inserts += int64(len(events))
		w.stats.Flushes++
		w.statsMu.Unlock()

		w.logger.Debug("flushed audit events",
			"count", len(events),
			"duration", time.Since(start),
		)
	}
}

// batchInsert inserts rows using pgx.Batch.
func (w *Writer) batchInsert(ctx context.Context, events []Event) error {
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(insertEvent, ev.ConnID, string(ev.Type), ev.RemoteAddr, ev.Reason, ev.Frames, ev.At)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
