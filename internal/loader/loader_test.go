package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"txnstats/internal/core"
	"txnstats/internal/sources"
)

type countingReader struct {
	calls atomic.Int32
	txns  []core.Transaction
	err   error
	gate  chan struct{}
}

func (r *countingReader) ReadTransactions(ctx context.Context) ([]core.Transaction, error) {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return append([]core.Transaction(nil), r.txns...), nil
}

var _ sources.TransactionReader = (*countingReader)(nil)

func sample() []core.Transaction {
	return []core.Transaction{
		{MTN: 1, Amount: 10, SenderFullName: core.Some("Tom Shelby")},
		{MTN: 2, Amount: 20, SenderFullName: core.Some("Ada Shelby")},
	}
}

func TestLoader_CachesSuccessfulLoad(t *testing.T) {
	r := &countingReader{txns: sample()}
	l := New("test", r, time.Minute, nil)
	ctx := context.Background()

	first := l.Load(ctx)
	second := l.Load(ctx)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("Load() lengths = %d, %d", len(first), len(second))
	}
	if got := r.calls.Load(); got != 1 {
		t.Fatalf("reader called %d times, want 1", got)
	}
	if !l.Cached() {
		t.Fatal("expected dataset to be cached")
	}

	first[0].Amount = 999
	if again := l.Load(ctx); again[0].Amount != 10 {
		t.Fatalf("cached dataset mutated through returned slice: %v", again[0])
	}
}

func TestLoader_ErrorYieldsEmptyAndIsNotCached(t *testing.T) {
	r := &countingReader{err: errors.New("file not found")}
	l := New("broken", r, time.Minute, nil)
	ctx := context.Background()

	got := l.Load(ctx)
	if got == nil || len(got) != 0 {
		t.Fatalf("Load() = %v, want empty non-nil slice", got)
	}
	if l.Cached() {
		t.Fatal("failed load must not be cached")
	}

	r.err = nil
	r.txns = sample()
	if got := l.Load(ctx); len(got) != 2 {
		t.Fatalf("Load() after recovery = %v", got)
	}
	if calls := r.calls.Load(); calls != 2 {
		t.Fatalf("reader called %d times, want 2", calls)
	}
}

func TestLoader_Invalidate(t *testing.T) {
	r := &countingReader{txns: sample()}
	l := New("test", r, 0, nil)
	ctx := context.Background()

	l.Load(ctx)
	l.Invalidate()
	if l.Cached() {
		t.Fatal("expected cache to be empty after Invalidate")
	}
	l.Load(ctx)
	if calls := r.calls.Load(); calls != 2 {
		t.Fatalf("reader called %d times, want 2", calls)
	}
}

func TestLoader_ConcurrentColdLoadsShareRead(t *testing.T) {
	r := &countingReader{txns: sample(), gate: make(chan struct{})}
	l := New("test", r, time.Minute, nil)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]core.Transaction, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.Load(ctx)
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	for i, res := range results {
		if len(res) != 2 {
			t.Fatalf("caller %d got %d records", i, len(res))
		}
	}
	if calls := r.calls.Load(); calls > 2 {
		t.Fatalf("reader called %d times for %d concurrent cold loads", calls, callers)
	}
}

func TestLoader_CancelledCallerDoesNotFailSharedRead(t *testing.T) {
	r := &countingReader{txns: sample(), gate: make(chan struct{})}
	l := New("test", r, time.Minute, nil)

	ctx1, cancel := context.WithCancel(context.Background())
	first := make(chan []core.Transaction)
	go func() { first <- l.Load(ctx1) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	second := make(chan []core.Transaction)
	go func() { second <- l.Load(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if got := <-first; len(got) != 0 {
		t.Fatalf("cancelled caller got %d records, want 0", len(got))
	}
	close(r.gate)

	if got := <-second; len(got) != 2 {
		t.Fatalf("live caller got %d records, want 2", len(got))
	}
	if !l.Cached() {
		t.Fatal("expected shared read to be cached after the starter cancelled")
	}
	if calls := r.calls.Load(); calls != 1 {
		t.Fatalf("reader called %d times, want 1", calls)
	}
}

func TestLoader_NilDatasetBecomesEmpty(t *testing.T) {
	l := New("nil", sources.ReaderFunc(func(context.Context) ([]core.Transaction, error) {
		return nil, nil
	}), time.Minute, nil)
	if got := l.Load(context.Background()); got == nil || len(got) != 0 {
		t.Fatalf("Load() = %#v, want empty slice", got)
	}
}
