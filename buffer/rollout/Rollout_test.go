package rollout

import (
	"testing"

	"github.com/bebop2/ppo/timestep"
)

func transition(i int, done bool) timestep.Transition {
	f := float64(i)
	return timestep.Transition{
		State:     []float64{f, f, f},
		Action:    []float64{f / 10, -f / 10},
		Reward:    f,
		Done:      done,
		NextState: []float64{f + 1, f + 1, f + 1},
		LogProb:   -f,
	}
}

func TestAddUntilFull(t *testing.T) {
	b, err := New(3, 2, 4)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if b.Full() {
			t.Fatalf("buffer full after %d transitions", i)
		}
		if err := b.Add(transition(i, false)); err != nil {
			t.Fatal(err)
		}
	}
	if !b.Full() || b.Len() != 4 {
		t.Fatalf("buffer should be full with 4 transitions, have %d", b.Len())
	}

	err = b.Add(transition(4, false))
	if !IsFull(err) {
		t.Errorf("expected full buffer error, have %v", err)
	}
}

func TestAddCopies(t *testing.T) {
	b, _ := New(3, 2, 2)
	tr := transition(1, false)
	if err := b.Add(tr); err != nil {
		t.Fatal(err)
	}
	tr.State[0] = 100

	if b.At(0).State[0] != 1 {
		t.Error("stored transition aliases caller's slice")
	}
}

func TestAddInvalid(t *testing.T) {
	b, _ := New(3, 2, 2)
	tr := transition(0, false)
	tr.Action = []float64{1}
	if err := b.Add(tr); err == nil {
		t.Error("expected error for wrong action size")
	}
	tr = transition(0, false)
	tr.NextState = nil
	if err := b.Add(tr); err == nil {
		t.Error("expected error for wrong next state size")
	}
}

func TestTruncate(t *testing.T) {
	b, _ := New(3, 2, 8)
	b.Truncate() // No-op on an empty buffer

	for i := 0; i < 3; i++ {
		if err := b.Add(transition(i, false)); err != nil {
			t.Fatal(err)
		}
	}
	b.Truncate()

	batch, err := b.Batch()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, 1}
	for i := range want {
		if batch.Dones[i] != want[i] {
			t.Errorf("done %d: want(%v) have(%v)", i, want[i], batch.Dones[i])
		}
	}
}

func TestBatchAndGather(t *testing.T) {
	b, _ := New(3, 2, 4)
	for i := 0; i < 4; i++ {
		if err := b.Add(transition(i, i == 3)); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := b.Batch()
	if err != nil {
		t.Fatal(err)
	}
	if batch.Len() != 4 {
		t.Fatalf("batch length: want(4) have(%d)", batch.Len())
	}
	if r, c := batch.States.Dims(); r != 4 || c != 3 {
		t.Errorf("states dims: want(4, 3) have(%d, %d)", r, c)
	}

	if batch.Rewards[3] != 3 || batch.Dones[3] != 1 || batch.Dones[1] != 0 {
		t.Errorf("batch rewards %v dones %v", batch.Rewards, batch.Dones)
	}
	if batch.NextStates.At(3, 0) != 4 {
		t.Errorf("next state: want(4) have(%v)", batch.NextStates.At(3, 0))
	}
	if got := Gather(batch.LogProbs, []int{2}); got[0] != -2 {
		t.Errorf("gather: want([-2]) have(%v)", got)
	}
}

func TestResetAndEmpty(t *testing.T) {
	b, _ := New(3, 2, 2)
	_ = b.Add(transition(0, false))
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("length after reset: want(0) have(%d)", b.Len())
	}
	if _, err := b.Batch(); !IsEmpty(err) {
		t.Errorf("expected empty buffer error, have %v", err)
	}
}
