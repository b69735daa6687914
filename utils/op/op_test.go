package op

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const tolerance = 1e-9

func vector(g *G.ExprGraph, name string, data ...float64) *G.Node {
	return G.NewVector(g, G.Float64, G.WithShape(len(data)), G.WithName(name),
		G.WithValue(tensor.New(tensor.WithShape(len(data)),
			tensor.WithBacking(data))))
}

func run(t *testing.T, n *G.Node) []float64 {
	t.Helper()
	vm := G.NewTapeMachine(n.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	return n.Value().Data().([]float64)
}

func check(t *testing.T, name string, have, want []float64) {
	t.Helper()
	if len(have) != len(want) {
		t.Fatalf("%v: want(%v) have(%v)", name, want, have)
	}
	for i := range want {
		if math.Abs(have[i]-want[i]) > tolerance {
			t.Errorf("%v: want(%v) have(%v)", name, want, have)
			return
		}
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
		in, want []float64
	}{
		{"inside", -1, 1, []float64{-0.5, 0, 0.5}, []float64{-0.5, 0, 0.5}},
		{"outside", -1, 1, []float64{-3, 2, 1.0001}, []float64{-1, 1, 1}},
		{"boundaries", -1, 1, []float64{-1, 1}, []float64{-1, 1}},
		{"ratio boundaries", 0.8, 1.2, []float64{0.8, 1.2, 0.5, 1.5},
			[]float64{0.8, 1.2, 0.8, 1.2}},
		{"empty interval", 2, 2, []float64{1, 2, 3}, []float64{2, 2, 2}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := G.NewGraph()
			clipped, err := Clip(vector(g, "x", test.in...), test.min, test.max)
			if err != nil {
				t.Fatal(err)
			}
			check(t, test.name, run(t, clipped), test.want)
		})
	}
}

func TestClipInvalidInterval(t *testing.T) {
	g := G.NewGraph()
	if _, err := Clip(vector(g, "x", 1), 1, -1); err == nil {
		t.Error("expected error for min > max")
	}
}

func TestMinMax(t *testing.T) {
	g := G.NewGraph()
	a := vector(g, "a", 1, -2, 3, 0.5)
	b := vector(g, "b", 2, -3, 3, -0.5)

	min, err := Min(a, b)
	if err != nil {
		t.Fatal(err)
	}
	max, err := Max(a, b)
	if err != nil {
		t.Fatal(err)
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	// Ties must not be counted twice
	check(t, "min", min.Value().Data().([]float64), []float64{1, -3, 3, -0.5})
	check(t, "max", max.Value().Data().([]float64), []float64{2, -2, 3, 0.5})
}

func TestGaussianLogPdfFixedStd(t *testing.T) {
	means := []float64{0, 0.5, -0.2, 0.1}
	actions := []float64{0.3, 0.5, -1, 0.4}
	logStd := []float64{-0.5, 0.1}

	g := G.NewGraph()
	matrix := func(name string, data []float64) *G.Node {
		return G.NewMatrix(g, G.Float64, G.WithShape(2, 2), G.WithName(name),
			G.WithValue(tensor.New(tensor.WithShape(2, 2),
				tensor.WithBacking(append([]float64(nil), data...)))))
	}
	logProb, err := GaussianLogPdfFixedStd(matrix("mean", means),
		matrix("actions", actions), logStd)
	if err != nil {
		t.Fatal(err)
	}

	want := make([]float64, 2)
	for i := 0; i < 2; i++ {
		for j, ls := range logStd {
			std := math.Exp(ls)
			z := (actions[i*2+j] - means[i*2+j]) / (std + 1e-8)
			want[i] += -0.5 * (z*z + 2*ls + math.Log(2*math.Pi))
		}
	}
	check(t, "log pdf", run(t, logProb), want)

	if _, err := GaussianLogPdfFixedStd(matrix("m", means),
		matrix("a", actions), []float64{0}); err == nil {
		t.Error("expected error for wrong number of log standard deviations")
	}
}
