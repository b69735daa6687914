package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion or an observation
type SpecType int

const (
	Action SpecType = iota
	Observation
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action or observation in an environment
type Spec struct {
	Shape      int
	Type       SpecType
	LowerBound *mat.VecDense
	UpperBound *mat.VecDense
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the number of dimensions of the data
// described by the specification. The argument t outlines what the
// specification is describing (e.g. actions, observations, etc.). The
// cardinality arguments describes whether the values that the spec
// describes are continuous or discrete.
func NewSpec(shape int, t SpecType, lowerBound,
	upperBound *mat.VecDense, cardinality Cardinality) (Spec, error) {
	if shape != lowerBound.Len() {
		return Spec{}, fmt.Errorf("newSpec: shape %v must match lower "+
			"bounds length %v", shape, lowerBound.Len())
	}
	if shape != upperBound.Len() {
		return Spec{}, fmt.Errorf("newSpec: shape %v must match upper "+
			"bounds length %v", shape, upperBound.Len())
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}, nil
}

// NewBoxSpec returns a continuous Spec of the given number of
// dimensions where each dimension is bounded by [low, high].
func NewBoxSpec(shape int, t SpecType, low, high float64) Spec {
	lower := mat.NewVecDense(shape, nil)
	upper := mat.NewVecDense(shape, nil)
	for i := 0; i < shape; i++ {
		lower.SetVec(i, low)
		upper.SetVec(i, high)
	}
	return Spec{shape, t, lower, upper, Continuous}
}
