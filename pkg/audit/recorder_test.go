package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

type failingSink struct{ calls int }

func (f *failingSink) Emit(context.Context, Event) error {
	f.calls++
	return errors.New("sink down")
}

func TestRecorder_PreservesEmissionOrder(t *testing.T) {
	store := NewMemoryStore(100)
	rec := NewRecorder(zap.NewNop().Sugar(), 64, store)

	for i := 0; i < 20; i++ {
		rec.Record(Event{
			TenantID:      "t1",
			CorrelationID: "corr-1",
			Type:          TypeCall,
			Detail:        map[string]any{"attempt": i},
		})
	}
	rec.Close()

	events := store.Dump("t1", time.Time{}, time.Time{})
	if len(events) != 20 {
		t.Fatalf("expected 20 events, got %d", len(events))
	}
	for i, e := range events {
		if got := e.Detail["attempt"].(int); got != i {
			t.Fatalf("event %d out of order: attempt %v", i, got)
		}
	}
}

func TestRecorder_FailingSinkDoesNotBlockCaller(t *testing.T) {
	bad := &failingSink{}
	store := NewMemoryStore(10)
	rec := NewRecorder(zap.NewNop().Sugar(), 8, bad, store)

	rec.Record(Event{TenantID: "t1", Type: TypeAuth})
	rec.Close()

	if bad.calls != 1 {
		t.Errorf("failing sink should still be attempted, got %d calls", bad.calls)
	}
	if got := len(store.Recent("t1", 10)); got != 1 {
		t.Errorf("healthy sink should receive the event, got %d", got)
	}
}

func TestRecorder_AllSinksFailingStillReturns(t *testing.T) {
	rec := NewRecorder(zap.NewNop().Sugar(), 8, &failingSink{}, &failingSink{})
	done := make(chan struct{})
	go func() {
		rec.Record(Event{TenantID: "t1", Type: TypeError})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked the caller")
	}
	rec.Close()
}

func TestRecorder_StampsTime(t *testing.T) {
	store := NewMemoryStore(10)
	rec := NewRecorder(zap.NewNop().Sugar(), 8, store)
	rec.Record(Event{TenantID: "t1", Type: TypeAuth})
	rec.Close()

	events := store.Recent("t1", 1)
	if len(events) != 1 || events[0].Time.IsZero() {
		t.Fatal("expected the recorder to stamp the event time")
	}
}

func TestMemoryStore_RecentAndDumpFilters(t *testing.T) {
	store := NewMemoryStore(100)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		tenant := "a"
		if i%2 == 1 {
			tenant = "b"
		}
		_ = store.Emit(context.Background(), Event{
			Time:     base.Add(time.Duration(i) * time.Minute),
			TenantID: tenant,
			Type:     TypeCall,
			Detail:   map[string]any{"i": i},
		})
	}

	recent := store.Recent("a", 3)
	if len(recent) != 3 {
		t.Fatalf("recent: expected 3, got %d", len(recent))
	}
	if recent[0].Detail["i"].(int) != 8 {
		t.Errorf("recent should be newest first, got %v", recent[0].Detail["i"])
	}

	dump := store.Dump("b", base.Add(2*time.Minute), base.Add(6*time.Minute))
	if len(dump) != 2 { // minutes 3 and 5
		t.Fatalf("dump: expected 2, got %d: %v", len(dump), dump)
	}
	if dump[0].Time.After(dump[1].Time) {
		t.Error("dump should be oldest first")
	}
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStore(5)
	for i := 0; i < 8; i++ {
		_ = store.Emit(context.Background(), Event{
			TenantID: "t",
			Type:     TypeCall,
			Detail:   map[string]any{"i": fmt.Sprint(i)},
		})
	}
	all := store.Dump("t", time.Time{}, time.Time{})
	if len(all) != 5 {
		t.Fatalf("expected 5 retained events, got %d", len(all))
	}
	if all[0].Detail["i"] != "3" {
		t.Errorf("expected oldest retained to be 3, got %v", all[0].Detail["i"])
	}
}
