package alert

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"telegram-stock-alert/internal/types"
)

type fakeClock struct {
	openChecks int32
	openAfter  int32
	nextCalls  int32
}

func (f *fakeClock) IsOpen(time.Time) bool {
	return atomic.AddInt32(&f.openChecks, 1) > f.openAfter
}

func (f *fakeClock) NextOpen(time.Time) time.Duration {
	atomic.AddInt32(&f.nextCalls, 1)
	return time.Millisecond
}

func TestService_WaitsForOpenThenPolls(t *testing.T) {
	mirror := NewMirror()
	mirror.Add(types.Alert{ID: 1, UserID: 10, Ticker: "AAPL",
		Spec: types.PriceSpec{Target: 1e9, Direction: types.Above}})

	gateway := &fakeGateway{closes: map[string]float64{"AAPL": 100}}
	evaluator := newTestEvaluator(gateway, &fakeNotifier{}, &fakeStore{}, mirror)

	clock := &fakeClock{openAfter: 2}
	service := NewService(evaluator, clock, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&gateway.batches) < 3 {
		select {
		case <-deadline:
			t.Fatal("service never reached steady polling")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if atomic.LoadInt32(&clock.nextCalls) < 2 {
		t.Fatalf("expected the closed-market path to consult NextOpen, got %d calls", clock.nextCalls)
	}
}
