package network

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

func newTestMLP(t *testing.T, batch int) NeuralNet {
	t.Helper()
	net, err := NewMLP(3, batch, 2, G.NewGraph(), []int{8, 4},
		[]bool{true, true}, G.GlorotU(1.0),
		[]*Activation{ReLU(), ReLU()}, TanH())
	if err != nil {
		t.Fatal(err)
	}
	return net
}

func predict(t *testing.T, net NeuralNet, input []float64) []float64 {
	t.Helper()
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	if err := net.SetInput(input); err != nil {
		t.Fatal(err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	out, err := Output(net)
	if err != nil {
		t.Fatal(err)
	}
	vm.Reset()
	return out
}

func TestNewMLPShapes(t *testing.T) {
	net := newTestMLP(t, 5)

	if net.BatchSize() != 5 || net.Features() != 3 || net.Outputs() != 2 {
		t.Errorf("unexpected dimensions: batch %d features %d outputs %d",
			net.BatchSize(), net.Features(), net.Outputs())
	}
	// Two hidden layers and the output layer, each with weights and bias
	if n := len(net.Learnables()); n != 6 {
		t.Errorf("learnables: want(6) have(%d)", n)
	}
	if !net.Prediction().Shape().Eq([]int{5, 2}) {
		t.Errorf("prediction shape: want([5 2]) have(%v)",
			net.Prediction().Shape())
	}
}

func TestNewMLPInvalid(t *testing.T) {
	_, err := NewMLP(3, 1, 2, G.NewGraph(), []int{8}, []bool{true, true},
		G.Zeroes(), []*Activation{ReLU()}, nil)
	if err == nil {
		t.Error("expected error for mismatched biases")
	}

	_, err = NewMLP(0, 1, 2, G.NewGraph(), []int{8}, []bool{true},
		G.Zeroes(), []*Activation{ReLU()}, nil)
	if err == nil {
		t.Error("expected error for zero features")
	}
}

func TestOutputBounded(t *testing.T) {
	net := newTestMLP(t, 1)
	out := predict(t, net, []float64{100, -100, 50})
	for _, v := range out {
		if v < -1 || v > 1 {
			t.Errorf("tanh output out of bounds: %v", v)
		}
	}
}

func TestCloneWithBatch(t *testing.T) {
	net := newTestMLP(t, 1)
	clone, err := net.CloneWithBatch(2)
	if err != nil {
		t.Fatal(err)
	}
	if clone.Graph() == net.Graph() {
		t.Error("clone shares graph with original")
	}

	state := []float64{0.1, -0.4, 0.7}
	want := predict(t, net, state)
	have := predict(t, clone, append(append([]float64{}, state...), state...))

	for i := range have {
		if math.Abs(have[i]-want[i%len(want)]) > 1e-12 {
			t.Errorf("output %d: want(%v) have(%v)", i, want[i%len(want)],
				have[i])
		}
	}
}

func TestGobRoundTrip(t *testing.T) {
	net := newTestMLP(t, 1)
	probe := []float64{0.3, 0.2, -0.9}
	want := predict(t, net, probe)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(net); err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	have := predict(t, decoded, probe)

	for i := range want {
		if have[i] != want[i] {
			t.Errorf("output %d: want(%v) have(%v)", i, want[i], have[i])
		}
	}
}

func TestSetMismatchLeavesWeights(t *testing.T) {
	net := newTestMLP(t, 1)
	other, err := NewMLP(3, 1, 2, G.NewGraph(), []int{8}, []bool{true},
		G.Zeroes(), []*Activation{ReLU()}, TanH())
	if err != nil {
		t.Fatal(err)
	}

	probe := []float64{1, 2, 3}
	before := predict(t, net, probe)
	if err := net.Set(other); err == nil {
		t.Fatal("expected error setting weights from a different architecture")
	}
	after := predict(t, net, probe)

	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("weights changed after failed Set")
		}
	}
}

func TestParseActivation(t *testing.T) {
	for _, name := range []string{"relu", "tanh", "identity"} {
		act, err := ParseActivation(name)
		if err != nil {
			t.Fatal(err)
		}
		if act.String() != name {
			t.Errorf("want(%v) have(%v)", name, act.String())
		}
	}
	if _, err := ParseActivation("softmax"); err == nil {
		t.Error("expected error for unknown activation")
	}
}
