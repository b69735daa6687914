package bebop

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/bebop2/ppo/environment"
	"github.com/bebop2/ppo/utils/retry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"L", Left},
		{"l", Left},
		{"R", Right},
		{"right", Right},
		{"both", Both},
		{" BOTH ", Both},
	}
	for _, test := range tests {
		got, err := ParseMode(test.in)
		if err != nil {
			t.Errorf("ParseMode(%q): %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseMode(%q) = %v, want %v", test.in, got, test.want)
		}
	}

	for _, in := range []string{"", "LR", "R_bebop2"} {
		if _, err := ParseMode(in); err == nil {
			t.Errorf("ParseMode(%q): expected error", in)
		}
	}
}

func TestModeIncludes(t *testing.T) {
	tests := []struct {
		mode Mode
		l, r bool
	}{
		{Left, true, false},
		{Right, false, true},
		{Both, true, true},
	}
	for _, test := range tests {
		if got := test.mode.Includes(L); got != test.l {
			t.Errorf("%v.Includes(L) = %v, want %v", test.mode, got, test.l)
		}
		if got := test.mode.Includes(R); got != test.r {
			t.Errorf("%v.Includes(R) = %v, want %v", test.mode, got, test.r)
		}
	}
	if n := len(Both.Drones()); n != 2 {
		t.Errorf("both reaches %d drones, want 2", n)
	}
}

func TestMailboxLatest(t *testing.T) {
	m := NewMailbox()
	if _, ok := m.Latest(); ok {
		t.Fatal("empty mailbox has a reading")
	}

	m.Put(Odometry{Position: r3.Vec{X: 1}})
	m.Put(Odometry{Position: r3.Vec{X: 2}})
	o, ok := m.Latest()
	if !ok || o.Position.X != 2 {
		t.Errorf("Latest() = %v, %v, want the second reading", o, ok)
	}

	m.Clear()
	if _, ok := m.Latest(); ok {
		t.Error("cleared mailbox has a reading")
	}
}

func TestMailboxWait(t *testing.T) {
	m := NewMailbox()

	ctx, cancel := context.WithTimeout(context.Background(),
		10*time.Millisecond)
	defer cancel()
	if _, err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want context.DeadlineExceeded", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		m.Put(Odometry{Position: r3.Vec{Z: 3}})
	}()
	o, err := m.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if o.Position.Z != 3 {
		t.Errorf("Wait() = %v, want the put reading", o)
	}

	// A reading is available, so Wait returns at once
	o, err = m.Wait(context.Background())
	if err != nil || o.Position.Z != 3 {
		t.Errorf("Wait() = %v, %v", o, err)
	}
}

func testLoopback() *Loopback {
	c := DefaultLoopbackConfig()
	c.AngularSpeed = 0
	c.StartSpread = 0
	return NewLoopback(c)
}

func testEnv(t *testing.T, link Link, modify func(*Config)) *Env {
	t.Helper()
	c := DefaultConfig()
	c.FollowDistance = 0.5
	c.MaxDistance = 1
	c.HeightInterval = 0
	if modify != nil {
		modify(&c)
	}

	e, err := New(link, c, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEnvReset(t *testing.T) {
	link := testLoopback()
	e := testEnv(t, link, nil)

	step, err := e.Reset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !step.First() {
		t.Errorf("reset returned a %v timestep", step.StepType)
	}
	if mat.Norm(step.Observation, 2) > 1e-9 {
		t.Errorf("observation = %v, want zero offset",
			step.Observation.RawVector().Data)
	}

	for _, d := range []Drone{L, R} {
		o, _ := e.odometry[d].Latest()
		if o.Position.Z < e.config.TakeoffHeight {
			t.Errorf("drone %v at height %v after reset", d, o.Position.Z)
		}
	}
}

func TestEnvStep(t *testing.T) {
	e := testEnv(t, testLoopback(), func(c *Config) { c.MaxDistance = 1.05 })
	if _, err := e.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}

	forward := mat.NewVecDense(3, []float64{1, 0, 0})
	step, err := e.Step(context.Background(), forward)
	if err != nil {
		t.Fatal(err)
	}

	// One control step of 0.1s at 1m/s
	if x := step.Observation.AtVec(0); math.Abs(x-0.1) > 1e-9 {
		t.Errorf("offset = %v, want 0.1", x)
	}
	if want := -0.4; math.Abs(step.Reward-want) > 1e-9 {
		t.Errorf("reward = %v, want %v", step.Reward, want)
	}
	if step.Last() || step.Number != 1 {
		t.Errorf("step = %v", step)
	}

	// Actions outside [-1, 1] are clipped
	var n int
	for !step.Last() {
		step, err = e.Step(context.Background(),
			mat.NewVecDense(3, []float64{5, 0, 0}))
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n > 20 {
			t.Fatal("episode did not end")
		}
	}
	if step.Number != 11 {
		t.Errorf("episode ended after %d steps, want 11", step.Number)
	}
	if step.Observation.AtVec(0) <= e.config.MaxDistance {
		t.Errorf("episode ended at offset %v", step.Observation.AtVec(0))
	}

	if _, err := e.Step(context.Background(),
		mat.NewVecDense(2, nil)); err == nil {
		t.Error("expected error on action of wrong size")
	}
}

func TestEnvTakeoffTimeout(t *testing.T) {
	c := DefaultLoopbackConfig()
	c.ClimbRate = 0.1
	e := testEnv(t, NewLoopback(c), func(c *Config) { c.HeightPolls = 3 })

	_, err := e.Reset(context.Background())
	if !errors.Is(err, ErrHeight) {
		t.Errorf("Reset() = %v, want ErrHeight", err)
	}
	if !errors.Is(err, retry.ErrExhausted) {
		t.Errorf("Reset() = %v, want retry.ErrExhausted", err)
	}
}

func TestEnvClose(t *testing.T) {
	link := testLoopback()
	e := testEnv(t, link, nil)
	if _, err := e.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, _ := e.odometry[R].Latest()

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	// Readings are no longer delivered after closing
	if err := link.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
	after, _ := e.odometry[R].Latest()
	if after != before {
		t.Errorf("reading delivered after close: %v", after)
	}

	link.mu.Lock()
	defer link.mu.Unlock()
	for d, s := range link.drones {
		if s.flying || s.position.Z != 0 {
			t.Errorf("drone %v not landed: %+v", Drone(d), s)
		}
	}
}

func TestLoopbackLeaderCircle(t *testing.T) {
	c := DefaultLoopbackConfig()
	c.Dt = 1
	c.AngularSpeed = math.Pi / 2
	link := NewLoopback(c)

	var last Odometry
	cancel, err := link.Subscribe(L, func(o Odometry) { last = o })
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := link.Takeoff(L); err != nil {
		t.Fatal(err)
	}
	if err := link.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A quarter turn from (r, 0)
	want := r3.Vec{X: 0, Y: c.Radius, Z: c.Altitude}
	if r3.Norm(r3.Sub(last.Position, want)) > 1e-9 {
		t.Errorf("leader at %v, want %v", last.Position, want)
	}

	ctx, stop := context.WithCancel(context.Background())
	stop()
	if err := link.Advance(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Advance() = %v, want context.Canceled", err)
	}
}

func TestStepLimit(t *testing.T) {
	e := testEnv(t, testLoopback(), func(c *Config) { c.MaxDistance = 100 })
	limited := environment.NewStepLimit(e, 3)

	for episode := 0; episode < 2; episode++ {
		if _, err := limited.Reset(context.Background()); err != nil {
			t.Fatal(err)
		}

		// Hovering never ends an episode, so only the limit does
		hover := mat.NewVecDense(3, nil)
		for i := 1; i <= 3; i++ {
			step, err := limited.Step(context.Background(), hover)
			if err != nil {
				t.Fatal(err)
			}
			if want := i == 3; step.Last() != want {
				t.Fatalf("episode %d step %d: %v", episode, i, step.StepType)
			}
		}
	}
}

// muteLink drops every odometry reading of one drone
type muteLink struct {
	*Loopback
	mute Drone
}

func (m muteLink) Subscribe(d Drone, fn func(Odometry)) (func(), error) {
	if d == m.mute {
		return m.Loopback.Subscribe(d, func(Odometry) {})
	}
	return m.Loopback.Subscribe(d, fn)
}

func TestEnvResetWaitsForOdometry(t *testing.T) {
	link := muteLink{Loopback: testLoopback(), mute: R}
	e := testEnv(t, link, func(c *Config) {
		c.Mode = "L"
		c.HeightPolls = 2
		c.HeightInterval = time.Millisecond
	})

	_, err := e.Reset(context.Background())
	if !errors.Is(err, ErrNoOdometry) {
		t.Errorf("Reset() = %v, want ErrNoOdometry", err)
	}
}

func TestEnvResetDiscardsStaleOdometry(t *testing.T) {
	link := testLoopback()
	e := testEnv(t, link, nil)
	e.odometry[R].Put(Odometry{Position: r3.Vec{X: 100}})

	step, err := e.Reset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if x := step.Observation.AtVec(0); math.Abs(x) > 10 {
		t.Errorf("observation built from stale reading: x = %v", x)
	}
}
