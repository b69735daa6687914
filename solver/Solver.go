// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be described in configuration files and rebuilt
// with a new step size at runtime.
package solver

import (
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSProp"
	Vanilla Type = "Vanilla"
)

// Solver wraps Gorgonia Solvers together with the Config that created
// them.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// StepSize returns the learning rate of the Solver
func (s *Solver) StepSize() float64 {
	return s.Config.StepSize()
}

// WithStepSize returns a fresh Solver with the same configuration as s
// but with learning rate stepSize. Any accumulated solver state, such as
// Adam moment estimates, is not carried over.
func (s *Solver) WithStepSize(stepSize float64) (*Solver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("withStepSize: step size must be positive, "+
			"have %v", stepSize)
	}
	return newSolver(s.Type, s.Config.WithStepSize(stepSize))
}

// Spec is the flat, configuration-file form of a Solver. Zero values
// select the defaults of the chosen solver type.
type Spec struct {
	Type    Type    `mapstructure:"type" yaml:"type"`
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon"`
	Beta1   float64 `mapstructure:"beta1" yaml:"beta1"`
	Beta2   float64 `mapstructure:"beta2" yaml:"beta2"`
	Rho     float64 `mapstructure:"rho" yaml:"rho"`
	Clip    float64 `mapstructure:"clip" yaml:"clip"`
}

// Validate checks a Spec for errors
func (s Spec) Validate() error {
	switch Type(strings.TrimSpace(string(s.Type))) {
	case Adam, RMSProp, Vanilla:
	default:
		return fmt.Errorf("validate: unknown solver type %q", s.Type)
	}
	if s.Epsilon < 0 {
		return fmt.Errorf("validate: epsilon must be non-negative")
	}
	if s.Beta1 < 0 || s.Beta1 >= 1 || s.Beta2 < 0 || s.Beta2 >= 1 {
		return fmt.Errorf("validate: adam betas must be in [0, 1)")
	}
	if s.Rho < 0 || s.Rho >= 1 {
		return fmt.Errorf("validate: rho must be in [0, 1)")
	}
	return nil
}

// New returns the Solver described by spec with the given step size and
// batch size.
func New(spec Spec, stepSize float64, batchSize int) (*Solver, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if stepSize <= 0 {
		return nil, fmt.Errorf("new: step size must be positive, have %v",
			stepSize)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("new: batch size must be positive, have %v",
			batchSize)
	}

	eps := orDefault(spec.Epsilon, 1e-8)
	switch Type(strings.TrimSpace(string(spec.Type))) {
	case Adam:
		return NewAdam(stepSize, eps, orDefault(spec.Beta1, 0.9),
			orDefault(spec.Beta2, 0.999), batchSize, spec.Clip)
	case RMSProp:
		return NewRMSProp(stepSize, eps, orDefault(spec.Rho, 0.999),
			batchSize, spec.Clip)
	default:
		return NewVanilla(stepSize, batchSize, spec.Clip)
	}
}

func orDefault(value, def float64) float64 {
	if value == 0 {
		return def
	}
	return value
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool

	// StepSize returns the learning rate of the configuration
	StepSize() float64

	// WithStepSize returns a copy of the configuration with a new
	// learning rate
	WithStepSize(float64) Config
}
