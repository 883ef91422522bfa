package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"strategy-core/pkg/db"
)

type recordingStore struct {
	mu      sync.Mutex
	batches [][]db.SignalRecord
	err     error
}

func (s *recordingStore) InsertSignals(_ context.Context, recs []db.SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, recs)
	return nil
}

func (s *recordingStore) rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestBatchWriterFlushOnClose(t *testing.T) {
	store := &recordingStore{}
	bw := NewBatchWriter(store, 100, time.Hour)

	for i := 0; i < 3; i++ {
		if err := bw.InsertSignal(context.Background(), db.SignalRecord{StrategyInstanceID: "s", Symbol: "BTCUSDT"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if got := bw.Pending(); got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}
	bw.Close()

	if got := store.rows(); got != 3 {
		t.Fatalf("flushed rows = %d, want 3", got)
	}
	if m := bw.Metrics(); m.TotalWrites != 3 || m.TotalBatches != 1 || m.Pending != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if err := bw.InsertSignal(context.Background(), db.SignalRecord{}); !errors.Is(err, ErrClosed) {
		t.Errorf("insert after close err = %v, want ErrClosed", err)
	}
	if err := bw.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestBatchWriterFlushWhenFull(t *testing.T) {
	store := &recordingStore{}
	bw := NewBatchWriter(store, 2, time.Hour)
	defer bw.Close()

	bw.InsertSignal(context.Background(), db.SignalRecord{Symbol: "A"})
	bw.InsertSignal(context.Background(), db.SignalRecord{Symbol: "B"})

	deadline := time.Now().Add(2 * time.Second)
	for store.rows() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("full buffer was not flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBatchWriterCountsFailedBatch(t *testing.T) {
	store := &recordingStore{err: errors.New("disk full")}
	bw := NewBatchWriter(store, 10, time.Hour)
	defer bw.Close()

	bw.InsertSignal(context.Background(), db.SignalRecord{Symbol: "A"})
	if err := bw.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	m := bw.Metrics()
	if m.TotalErrors != 1 || m.TotalWrites != 0 || m.Pending != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestBatchWriterIntoSQLite(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bw := NewBatchWriter(database, 10, time.Hour)
	now := time.Now()
	for i, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		bw.InsertSignal(context.Background(), db.SignalRecord{
			StrategyInstanceID: "rsi",
			Symbol:             sym,
			Direction:          1,
			RSI:                75,
			CreatedAt:          now.Add(time.Duration(i) * time.Second),
		})
	}
	bw.Close()

	got, err := database.ListSignals(context.Background(), "rsi", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Symbol != "ETHUSDT" {
		t.Fatalf("signals = %+v", got)
	}
}
