package persistence

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"strategy-core/pkg/db"
)

var ErrClosed = errors.New("batch writer closed")

// SignalStore is the bulk sink a BatchWriter flushes into.
type SignalStore interface {
	InsertSignals(ctx context.Context, recs []db.SignalRecord) error
}

// BatchWriter buffers signal rows so strategy callbacks never wait on
// SQLite. Rows are flushed in one transaction when the buffer reaches
// maxSize, on every interval, and on Close.
type BatchWriter struct {
	store    SignalStore
	mu       sync.Mutex
	buffer   []db.SignalRecord
	closed   bool
	maxSize  int
	interval time.Duration
	kick     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	totalWrites  uint64
	totalBatches uint64
	totalErrors  uint64
}

// BatchWriterMetrics provides statistics about flushed batches.
type BatchWriterMetrics struct {
	TotalWrites  uint64 `json:"total_writes"`
	TotalBatches uint64 `json:"total_batches"`
	TotalErrors  uint64 `json:"total_errors"`
	Pending      int    `json:"pending"`
}

// NewBatchWriter starts the background flusher.
// maxSize: rows before an early flush
// interval: time-based flush interval
func NewBatchWriter(store SignalStore, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		store:    store,
		buffer:   make([]db.SignalRecord, 0, maxSize),
		maxSize:  maxSize,
		interval: interval,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// InsertSignal buffers rec. It never blocks on the database.
func (bw *BatchWriter) InsertSignal(_ context.Context, rec db.SignalRecord) error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrClosed
	}
	bw.buffer = append(bw.buffer, rec)
	full := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if full {
		select {
		case bw.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush writes all buffered rows now. A failed batch is dropped and counted.
func (bw *BatchWriter) Flush(ctx context.Context) error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	recs := bw.buffer
	bw.buffer = make([]db.SignalRecord, 0, bw.maxSize)
	bw.mu.Unlock()

	atomic.AddUint64(&bw.totalBatches, 1)
	if err := bw.store.InsertSignals(ctx, recs); err != nil {
		atomic.AddUint64(&bw.totalErrors, 1)
		log.Printf("BatchWriter: dropped %d signals: %v", len(recs), err)
		return err
	}
	atomic.AddUint64(&bw.totalWrites, uint64(len(recs)))
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-bw.kick:
		case <-bw.done:
			// Final flush before shutdown
			bw.Flush(context.Background())
			return
		}
		bw.Flush(context.Background())
	}
}

// Pending returns the number of buffered rows.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	return BatchWriterMetrics{
		TotalWrites:  atomic.LoadUint64(&bw.totalWrites),
		TotalBatches: atomic.LoadUint64(&bw.totalBatches),
		TotalErrors:  atomic.LoadUint64(&bw.totalErrors),
		Pending:      bw.Pending(),
	}
}

// Close rejects further rows, flushes what is buffered and stops the
// flusher. It is safe to call more than once.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	bw.mu.Unlock()

	close(bw.done)
	bw.wg.Wait()
	return nil
}
