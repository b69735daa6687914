package experiment

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bebop2/ppo/agent"
	env "github.com/bebop2/ppo/environment"
	"github.com/bebop2/ppo/experiment/tracker"
	"github.com/bebop2/ppo/experiment/trackers"
	ts "github.com/bebop2/ppo/timestep"
	"github.com/bebop2/ppo/utils/retry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

var errFatal = errors.New("fatal agent error")

// countingEnv has episodes of a fixed length with a reward of 1 on
// every step
type countingEnv struct {
	length int
	step   int

	resets      int
	failResets  int
	failSteps   map[int]bool // failing steps, by call to Step
	steps       int
	closed      int
	alwaysFails bool
}

func (e *countingEnv) Reset(context.Context) (ts.TimeStep, error) {
	e.resets++
	if e.resets <= e.failResets {
		return ts.TimeStep{}, fmt.Errorf("reset %d failed", e.resets)
	}
	e.step = 0
	return ts.New(ts.First, 0, mat.NewVecDense(1, []float64{0}), 0), nil
}

func (e *countingEnv) Step(_ context.Context, a *mat.VecDense) (ts.TimeStep,
	error) {
	e.steps++
	if e.alwaysFails || e.failSteps[e.steps] {
		return ts.TimeStep{}, fmt.Errorf("step %d failed", e.steps)
	}

	e.step++
	t := ts.Mid
	if e.step >= e.length {
		t = ts.Last
	}
	obs := mat.NewVecDense(1, []float64{float64(e.step)})
	return ts.New(t, 1, obs, e.step), nil
}

func (e *countingEnv) ObservationSpec() env.Spec {
	return env.NewBoxSpec(1, env.Observation, 0, 100)
}

func (e *countingEnv) ActionSpec() env.Spec {
	return env.NewBoxSpec(1, env.Action, -1, 1)
}

func (e *countingEnv) Close() error {
	e.closed++
	return nil
}

// recordingAgent records every call made to it
type recordingAgent struct {
	transitions []ts.Transition
	scores      []float64
	aborts      int
	forced      int
	eval        bool

	// episodes finished before the run, as after resuming
	start int

	observeErr error
	onEnd      func(episode int)
}

func (a *recordingAgent) SelectAction(*mat.VecDense) (*mat.VecDense,
	float64, error) {
	return mat.NewVecDense(1, []float64{0.5}), -1, nil
}

func (a *recordingAgent) Observe(_ context.Context, t ts.Transition) error {
	a.transitions = append(a.transitions, t)
	return a.observeErr
}

func (a *recordingAgent) EndEpisode(score float64) agent.EpisodeReport {
	a.scores = append(a.scores, score)
	if a.onEnd != nil {
		a.onEnd(len(a.scores))
	}
	return agent.EpisodeReport{Episode: a.Episode(), Score: score}
}

func (a *recordingAgent) Episode() int { return a.start + len(a.scores) }

func (a *recordingAgent) AbortEpisode()    { a.aborts++ }
func (a *recordingAgent) ForceSave() error { a.forced++; return nil }
func (a *recordingAgent) Eval()            { a.eval = true }
func (a *recordingAgent) Train()           { a.eval = false }
func (a *recordingAgent) IsEval() bool     { return a.eval }

func testConfig(episodes int) Config {
	c := DefaultConfig()
	c.Episodes = episodes
	c.ResetBackoff = time.Millisecond
	c.MaxResetBackoff = 2 * time.Millisecond
	c.MaxAborts = 2
	return c
}

func newTestDriver(t *testing.T, e env.Environment, a agent.Agent, c Config,
	trs ...tracker.Tracker) *Driver {
	t.Helper()
	d, err := NewDriver(e, a, c, zerolog.Nop(), trs...)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRunEpisodeBudget(t *testing.T) {
	e := &countingEnv{length: 3}
	a := &recordingAgent{}
	filename := filepath.Join(t.TempDir(), "lengths.bin")
	lengths := trackers.NewEpisodeLength(filename)
	d := newTestDriver(t, e, a, testConfig(4), lengths)

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if d.Completed() != 4 || len(a.scores) != 4 {
		t.Fatalf("completed %d episodes with %d scores, want 4",
			d.Completed(), len(a.scores))
	}
	for i, s := range a.scores {
		if s != 3 {
			t.Errorf("episode %d: score = %v, want 3", i+1, s)
		}
	}
	if len(a.transitions) != 12 {
		t.Fatalf("observed %d transitions, want 12", len(a.transitions))
	}
	for i, tr := range a.transitions {
		if want := i%3 == 2; tr.Done != want {
			t.Errorf("transition %d: done = %v, want %v", i, tr.Done, want)
		}
		if tr.NextState[0] != tr.State[0]+1 {
			t.Errorf("transition %d: state %v followed by %v", i, tr.State,
				tr.NextState)
		}
		if tr.LogProb != -1 || tr.Action[0] != 0.5 {
			t.Errorf("transition %d: action %v with log prob %v", i,
				tr.Action, tr.LogProb)
		}
	}

	if got := lengths.Lengths(); len(got) != 4 || got[0] != 3 {
		t.Errorf("tracked lengths = %v", got)
	}
	if e.closed != 1 {
		t.Errorf("environment closed %d times, want 1", e.closed)
	}
	if err := d.Close(); err != nil || e.closed != 1 {
		t.Errorf("second close: err = %v, closed %d times", err, e.closed)
	}
	if a.forced != 0 {
		t.Errorf("forced checkpoint on normal exit")
	}

	saved, err := tracker.LoadData(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 4 {
		t.Errorf("saved %d lengths, want 4", len(saved))
	}
}

func TestRunResumedBudget(t *testing.T) {
	e := &countingEnv{length: 2}
	a := &recordingAgent{start: 8}
	d := newTestDriver(t, e, a, testConfig(10))

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Completed() != 2 || a.Episode() != 10 {
		t.Errorf("completed %d episodes up to episode %d, want 2 up to 10",
			d.Completed(), a.Episode())
	}

	// An agent past the budget runs nothing
	e = &countingEnv{length: 2}
	a = &recordingAgent{start: 12}
	d = newTestDriver(t, e, a, testConfig(10))
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Completed() != 0 || e.resets != 0 {
		t.Errorf("completed %d episodes with %d resets, want none",
			d.Completed(), e.resets)
	}
}

func TestProgressBarClosed(t *testing.T) {
	tests := []struct {
		name  string
		agent func(cancel func()) *recordingAgent
	}{
		{"budget", func(func()) *recordingAgent {
			return &recordingAgent{start: 1}
		}},
		{"cancelled", func(cancel func()) *recordingAgent {
			return &recordingAgent{onEnd: func(int) { cancel() }}
		}},
		{"error", func(func()) *recordingAgent {
			return &recordingAgent{observeErr: errFatal}
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var out bytes.Buffer
			d := newTestDriver(t, &countingEnv{length: 2},
				test.agent(cancel), testConfig(3))
			d.ShowProgress(&out)
			_ = d.Run(ctx)

			if !strings.HasSuffix(out.String(), "\n") {
				t.Errorf("progress bar line not terminated: %q", out.String())
			}
			if !strings.Contains(out.String(), "|") {
				t.Errorf("progress bar not drawn: %q", out.String())
			}
		})
	}
}

func TestResetRetry(t *testing.T) {
	e := &countingEnv{length: 2, failResets: 2}
	a := &recordingAgent{}
	c := testConfig(1)
	c.ResetAttempts = 3
	d := newTestDriver(t, e, a, c)

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.resets != 3 {
		t.Errorf("reset %d times, want 3", e.resets)
	}
	if len(a.scores) != 1 {
		t.Errorf("completed %d episodes, want 1", len(a.scores))
	}
}

func TestResetRetryExhausted(t *testing.T) {
	e := &countingEnv{length: 2, failResets: 5}
	a := &recordingAgent{}
	c := testConfig(1)
	c.ResetAttempts = 2
	d := newTestDriver(t, e, a, c)

	err := d.Run(context.Background())
	if !errors.Is(err, retry.ErrExhausted) {
		t.Fatalf("Run() = %v, want retry.ErrExhausted", err)
	}
	if e.resets != 2 {
		t.Errorf("reset %d times, want 2", e.resets)
	}
	if e.closed != 1 {
		t.Errorf("environment closed %d times, want 1", e.closed)
	}
}

func TestStepFailureAbortsEpisode(t *testing.T) {
	// The second step of the first episode fails
	e := &countingEnv{length: 3, failSteps: map[int]bool{2: true}}
	a := &recordingAgent{}
	d := newTestDriver(t, e, a, testConfig(2))

	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.aborts != 1 {
		t.Errorf("aborted %d episodes, want 1", a.aborts)
	}
	if len(a.scores) != 2 {
		t.Errorf("completed %d episodes, want 2", len(a.scores))
	}
	if e.resets != 3 {
		t.Errorf("reset %d times, want 3", e.resets)
	}

	// One transition from the aborted episode, then two full episodes
	if len(a.transitions) != 7 {
		t.Errorf("observed %d transitions, want 7", len(a.transitions))
	}
}

func TestTooManyAborts(t *testing.T) {
	e := &countingEnv{length: 3, alwaysFails: true}
	a := &recordingAgent{}
	d := newTestDriver(t, e, a, testConfig(5))

	err := d.Run(context.Background())
	if !errors.Is(err, ErrTooManyAborts) {
		t.Fatalf("Run() = %v, want ErrTooManyAborts", err)
	}
	if a.aborts != 3 {
		t.Errorf("aborted %d episodes, want 3", a.aborts)
	}
	if len(a.scores) != 0 {
		t.Errorf("recorded %d scores for aborted episodes", len(a.scores))
	}
}

func TestCancelForcesCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &countingEnv{length: 2}
	a := &recordingAgent{onEnd: func(episode int) {
		if episode == 2 {
			cancel()
		}
	}}
	d := newTestDriver(t, e, a, testConfig(0))

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil on cancellation", err)
	}
	if a.forced != 1 {
		t.Errorf("forced %d checkpoints, want 1", a.forced)
	}
	if len(a.scores) != 2 {
		t.Errorf("completed %d episodes, want 2", len(a.scores))
	}
	if e.closed != 1 {
		t.Errorf("environment closed %d times, want 1", e.closed)
	}
}

func TestAgentErrorIsFatal(t *testing.T) {
	e := &countingEnv{length: 3}
	a := &recordingAgent{observeErr: errors.Wrap(errFatal, "update")}
	d := newTestDriver(t, e, a, testConfig(3))

	err := d.Run(context.Background())
	if !errors.Is(err, errFatal) {
		t.Fatalf("Run() = %v, want errFatal", err)
	}
	if len(a.transitions) != 1 {
		t.Errorf("observed %d transitions after a fatal error, want 1",
			len(a.transitions))
	}
	if a.forced != 0 {
		t.Errorf("forced checkpoint after a fatal error")
	}
	if e.closed != 1 {
		t.Errorf("environment closed %d times, want 1", e.closed)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative episodes", func(c *Config) { c.Episodes = -1 }},
		{"no reset attempts", func(c *Config) { c.ResetAttempts = 0 }},
		{"negative backoff", func(c *Config) { c.ResetBackoff = -1 }},
		{"negative max aborts", func(c *Config) { c.MaxAborts = -1 }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := DefaultConfig()
			test.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
