package trackers

import (
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bebop2/ppo/experiment/tracker"
	ts "github.com/bebop2/ppo/timestep"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestReturnAndEpisodeLength(t *testing.T) {
	dir := t.TempDir()
	ret := NewReturn(filepath.Join(dir, "return.bin"))
	length := NewEpisodeLength(filepath.Join(dir, "length.bin"))

	steps := []ts.TimeStep{
		ts.New(ts.First, 0, nil, 0),
		ts.New(ts.Mid, 1, nil, 1),
		ts.New(ts.Last, 2, nil, 2),
		ts.New(ts.First, 0, nil, 0),
		ts.New(ts.Mid, 5, nil, 1), // Aborted episode
		ts.New(ts.First, 0, nil, 0),
		ts.New(ts.Last, -1, nil, 1),
	}
	for _, step := range steps {
		ret.Track(step)
		length.Track(step)
	}

	if got := ret.Returns(); len(got) != 2 || got[0] != 3 || got[1] != -1 {
		t.Errorf("returns: want([3 -1]) have(%v)", got)
	}
	if got := length.Lengths(); len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Errorf("lengths: want([2 1]) have(%v)", got)
	}

	if err := ret.Save(); err != nil {
		t.Fatal(err)
	}
	data, err := tracker.LoadData(filepath.Join(dir, "return.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || data[0] != 3 {
		t.Errorf("loaded returns: want([3 -1]) have(%v)", data)
	}
}

func TestSeries(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "series.bin")
	s := NewSeries(filename)

	s.Record(ActorLoss, 0.5, 0)
	s.Record(ActorLoss, 0.25, 1)
	s.Record(Score, -10, 1)

	if got := s.Get(ActorLoss); len(got) != 2 || got[1] != (Point{1, 0.25}) {
		t.Errorf("actor loss: have %v", got)
	}
	if names := s.Names(); strings.Join(names, ",") != "actor_loss,score" {
		t.Errorf("names: have %v", names)
	}

	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSeries(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded[Score]) != 1 || loaded[Score][0].Value != -10 {
		t.Errorf("loaded score: have %v", loaded[Score])
	}
}

func TestPrometheus(t *testing.T) {
	p, err := NewPrometheus("ppo")
	if err != nil {
		t.Fatal(err)
	}
	p.Record(CriticLoss, 1.5, 3)
	p.Record(CriticLoss, 0.75, 4)

	if v := testutil.ToFloat64(p.values.WithLabelValues(CriticLoss)); v != 0.75 {
		t.Errorf("value: want(0.75) have(%v)", v)
	}
	if v := testutil.ToFloat64(p.steps.WithLabelValues(CriticLoss)); v != 4 {
		t.Errorf("step: want(4) have(%v)", v)
	}

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := ioutil.ReadAll(rec.Body)
	if !strings.Contains(string(body), `ppo_series_value{name="critic_loss"} 0.75`) {
		t.Errorf("metrics output missing critic loss:\n%s", body)
	}
}

func TestPlot(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "curve.png")
	p := NewPlot(filename, 2, zerolog.Nop())

	p.Record(Score, -3, 1)
	p.Record(AverageScore, -3, 1)
	if _, err := os.Stat(filename); err == nil {
		t.Fatal("plot saved before a multiple of the interval")
	}

	p.Record(Score, -1, 2)
	p.Record(AverageScore, -2, 2)
	if _, err := os.Stat(filename); err != nil {
		t.Fatalf("plot not saved: %v", err)
	}
}

func TestMulti(t *testing.T) {
	a := NewSeries("a")
	b := NewSeries("b")
	Multi{a, b, Nop{}}.Record(ApproxKL, 0.01, 7)

	for _, s := range []*Series{a, b} {
		if got := s.Get(ApproxKL); len(got) != 1 || got[0].Step != 7 {
			t.Errorf("multi did not forward record: %v", got)
		}
	}
}
