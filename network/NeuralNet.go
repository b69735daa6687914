// Package network implements feed forward neural networks built on
// Gorgonia computational graphs.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a neural network whose forward pass has been added to
// its own computational graph. The input batch size is fixed at
// construction; CloneWithBatch builds an equivalent network on a new
// graph with a different batch size.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Prediction() *G.Node
}

// Output returns a copy of the values of the prediction node of net.
// It must be called after the graph has been run and before the
// machine running it is reset.
func Output(net NeuralNet) ([]float64, error) {
	return Values(net.Prediction())
}

// Values returns a copy of the float64 data stored in a node
func Values(node *G.Node) ([]float64, error) {
	if node.Value() == nil {
		return nil, fmt.Errorf("values: node %v has no value", node.Name())
	}

	switch data := node.Value().Data().(type) {
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out, nil

	case float64:
		return []float64{data}, nil

	default:
		return nil, fmt.Errorf("values: node %v has unsupported data type %T",
			node.Name(), data)
	}
}

// Scalar returns the value of a scalar node
func Scalar(node *G.Node) (float64, error) {
	v, err := Values(node)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, fmt.Errorf("scalar: node %v is not a scalar", node.Name())
	}
	return v[0], nil
}

// set sets the values of the learnables dest to the values of the
// learnables in source. Shapes are checked before anything is written so
// that a mismatch leaves dest untouched.
func set(dest, source G.Nodes) error {
	if len(dest) != len(source) {
		return fmt.Errorf("set: number of learnables differ\n\twant(%d)"+
			"\n\thave(%d)", len(dest), len(source))
	}
	for i := range dest {
		if !dest[i].Shape().Eq(source[i].Shape()) {
			return fmt.Errorf("set: shape mismatch at learnable %d"+
				"\n\twant(%v)\n\thave(%v)", i, dest[i].Shape(),
				source[i].Shape())
		}
		if source[i].Value() == nil {
			return fmt.Errorf("set: source learnable %d has no value", i)
		}
	}

	for i := range dest {
		data, err := Values(source[i])
		if err != nil {
			return fmt.Errorf("set: %v", err)
		}
		weights := tensor.New(
			tensor.WithShape(source[i].Shape().Clone()...),
			tensor.WithBacking(data),
		)
		if err := G.Let(dest[i], weights); err != nil {
			return fmt.Errorf("set: could not set learnable %d: %v", i, err)
		}
	}
	return nil
}
