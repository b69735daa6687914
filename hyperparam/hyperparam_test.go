package hyperparam

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLearningRate(t *testing.T) {
	lr, err := NewLearningRate(2.5e-4)
	if err != nil {
		t.Fatal(err)
	}
	if value := lr.Get(); value != 2.5e-4 {
		t.Errorf("want(2.5e-4) have(%v)", value)
	}

	if err := lr.Set(1e-3); err != nil {
		t.Fatal(err)
	}
	if value := lr.Get(); value != 1e-3 {
		t.Errorf("want(1e-3) have(%v)", value)
	}

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := lr.Set(bad); !errors.Is(err, ErrInvalid) {
			t.Errorf("set(%v): expected ErrInvalid, have %v", bad, err)
		}
	}
	if lr.Get() != 1e-3 {
		t.Errorf("invalid set changed value to %v", lr.Get())
	}

	if _, err := NewLearningRate(0); err == nil {
		t.Error("expected error for zero learning rate")
	}
}

func TestLearningRateConcurrent(t *testing.T) {
	lr, _ := NewLearningRate(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if v := lr.Get(); v <= 0 {
					t.Errorf("read invalid value %v", v)
					return
				}
			}
		}()
	}
	for j := 1; j <= 1000; j++ {
		_ = lr.Set(float64(j))
	}
	wg.Wait()
}

func TestConsole(t *testing.T) {
	lr, _ := NewLearningRate(1)
	in := strings.NewReader("0.5\nnot-a-number\n-3\n\n0.25\n")
	c := NewConsole(lr, in, zerolog.Nop())

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if value := lr.Get(); value != 0.25 {
		t.Errorf("learning rate: want(0.25) have(%v)", value)
	}
}

func TestConsoleCancel(t *testing.T) {
	lr, _ := NewLearningRate(1)
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewConsole(lr, r, zerolog.Nop()).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on cancel, have %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("console did not stop after cancellation")
	}
}
