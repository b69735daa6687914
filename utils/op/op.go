// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/gold on GitHub
package op

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// scalar returns a named scalar node in the graph of like with the
// same dtype as like.
func scalar(like *G.Node, value float64, name string) *G.Node {
	switch like.Dtype() {
	case G.Float32:
		return G.NewScalar(like.Graph(), G.Float32,
			G.WithValue(float32(value)), G.WithName(name))
	default:
		return G.NewScalar(like.Graph(), G.Float64,
			G.WithValue(value), G.WithName(name))
	}
}

// Clip clips the value of a node to [min, max]. Gradients flow through
// elements inside the interval only.
func Clip(value *G.Node, min, max float64) (retVal *G.Node, err error) {
	if min > max {
		return nil, fmt.Errorf("clip: min %v > max %v", min, max)
	}

	// Construct clipping nodes
	minNode := scalar(value, min, fmt.Sprintf("clip_min_%v", value.ID()))
	maxNode := scalar(value, max, fmt.Sprintf("clip_max_%v", value.ID()))

	// Check if its the min value
	minMask, err := G.Lt(value, minNode, true)
	if err != nil {
		return nil, err
	}
	minVal, err := G.HadamardProd(minNode, minMask)
	if err != nil {
		return nil, err
	}

	// Check if its the given value. Boundaries are included here so that
	// a value sitting exactly on min or max is passed through unchanged.
	isMaskGte, err := G.Gte(value, minNode, true)
	if err != nil {
		return nil, err
	}
	isMaskLte, err := G.Lte(value, maxNode, true)
	if err != nil {
		return nil, err
	}
	isMask, err := G.HadamardProd(isMaskGte, isMaskLte)
	if err != nil {
		return nil, err
	}
	isVal, err := G.HadamardProd(value, isMask)
	if err != nil {
		return nil, err
	}

	// Check if its the max value
	maxMask, err := G.Gt(value, maxNode, true)
	if err != nil {
		return nil, err
	}
	maxVal, err := G.HadamardProd(maxNode, maxMask)
	if err != nil {
		return nil, err
	}
	return G.ReduceAdd(G.Nodes{minVal, isVal, maxVal})
}

// Min returns the element-wise min value between the nodes. If values
// are equal the first value is returned
func Min(a *G.Node, b *G.Node) (retVal *G.Node, err error) {
	aMask, err := G.Lte(a, b, true)
	if err != nil {
		return nil, err
	}
	aVal, err := G.HadamardProd(a, aMask)
	if err != nil {
		return nil, err
	}

	bMask, err := G.Lt(b, a, true)
	if err != nil {
		return nil, err
	}
	bVal, err := G.HadamardProd(b, bMask)
	if err != nil {
		return nil, err
	}
	return G.Add(aVal, bVal)
}

// Max returns the element-wise max value between the nodes. If values
// are equal the first value is returned.
func Max(a *G.Node, b *G.Node) (retVal *G.Node, err error) {
	aMask, err := G.Gte(a, b, true)
	if err != nil {
		return nil, err
	}
	aVal, err := G.HadamardProd(a, aMask)
	if err != nil {
		return nil, err
	}

	bMask, err := G.Gt(b, a, true)
	if err != nil {
		return nil, err
	}
	bVal, err := G.HadamardProd(b, bMask)
	if err != nil {
		return nil, err
	}
	return G.Add(aVal, bVal)
}

// GaussianLogPdfFixedStd calculates the log of the probability density
// function of actions under a diagonal Gaussian with mean mean and a
// constant (non-learned) per-dimension log standard deviation logStd.
//
// Both mean and actions must be m x n matrices where the rows (m) are
// samples in the batch and the columns (n) are action dimensions, and
// len(logStd) must be n. The returned node is a vector of m log
// probabilities, each summed over the action dimensions:
//
//	Σ_j -½ [((a_j - μ_j) / (σ_j + 1e-8))² + 2 log σ_j + log 2π]
func GaussianLogPdfFixedStd(mean, actions *G.Node, logStd []float64) (*G.Node,
	error) {
	if mean.Graph() != actions.Graph() {
		return nil, fmt.Errorf("gaussianLogPdfFixedStd: all nodes must " +
			"share the same graph")
	}
	if !mean.Shape().Eq(actions.Shape()) {
		return nil, fmt.Errorf("gaussianLogPdfFixedStd: shape mismatch "+
			"\n\tmean(%v)\n\tactions(%v)", mean.Shape(), actions.Shape())
	}
	batch, dims := mean.Shape()[0], mean.Shape()[1]
	if len(logStd) != dims {
		return nil, fmt.Errorf("gaussianLogPdfFixedStd: want %d log "+
			"standard deviations, have %d", dims, len(logStd))
	}

	// Per-element standard deviations, broadcast along the batch
	// manually since the standard deviation is constant
	std := make([]float64, batch*dims)
	constant := 0.0
	for j, ls := range logStd {
		s := math.Exp(ls) + 1e-8
		for i := 0; i < batch; i++ {
			std[i*dims+j] = s
		}
		constant -= ls + 0.5*math.Log(2*math.Pi)
	}
	stdNode := G.NewConstant(
		tensor.New(tensor.WithShape(batch, dims), tensor.WithBacking(std)),
		G.WithName(fmt.Sprintf("fixed_std_%v", mean.ID())),
	)

	diff, err := G.Sub(actions, mean)
	if err != nil {
		return nil, err
	}
	z, err := G.HadamardDiv(diff, stdNode)
	if err != nil {
		return nil, err
	}
	z, err = G.Square(z)
	if err != nil {
		return nil, err
	}
	exponent, err := G.Sum(z, 1)
	if err != nil {
		return nil, err
	}
	exponent, err = G.HadamardProd(exponent, G.NewConstant(-0.5))
	if err != nil {
		return nil, err
	}

	return G.Add(exponent, G.NewConstant(constant))
}
