package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceeds(t *testing.T) {
	p := Policy{Attempts: 5, Backoff: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("calls: want(3) have(%v)", calls)
	}
}

func TestDoExhausted(t *testing.T) {
	p := Policy{Attempts: 4, Backoff: time.Microsecond}
	last := errors.New("last")

	var attempts []int
	err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		return last
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("want ErrExhausted, have %v", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("want wrapped last error, have %v", err)
	}
	if len(attempts) != 4 {
		t.Fatalf("attempts: want(4) have(%v)", len(attempts))
	}
	for i, a := range attempts {
		if a != i {
			t.Errorf("attempt %d: have(%v)", i, a)
		}
	}
}

func TestDoSingleAttempt(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("want ErrExhausted, have %v", err)
	}
	if calls != 1 {
		t.Errorf("calls: want(1) have(%v)", calls)
	}
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 3, Backoff: time.Hour}

	calls := 0
	err := p.Do(ctx, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, have %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("cancellation should not report exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls: want(1) have(%v)", calls)
	}
}

func TestDoBackoffCapped(t *testing.T) {
	p := Policy{
		Attempts:   4,
		Backoff:    5 * time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	}

	start := time.Now()
	_ = p.Do(context.Background(), func(context.Context, int) error {
		return errors.New("fail")
	})

	// Three waits of at most 5ms each
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("backoff not capped: took %v", elapsed)
	}
}
