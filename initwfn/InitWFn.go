// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be described in configuration files.
package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	HeU      Type = "HeU"
	HeN      Type = "HeN"
	Zeroes   Type = "Zeroes"
	Ones     Type = "Ones"
	Constant Type = "Constant"
	Gaussian Type = "Gaussian"
	Uniform  Type = "Uniform"
)

// InitWFn wraps Gorgonia InitWFn so that the initializer used for a
// network can be recorded alongside the rest of a run's configuration.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn
func newInitWFn(c Config) (*InitWFn, error) {
	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (i *InitWFn) InitWFn() G.InitWFn {
	return i.initWFn
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// Spec is the flat, configuration-file form of an InitWFn. Only the
// fields relevant to Type are read.
type Spec struct {
	Type   Type    `mapstructure:"type" yaml:"type"`
	Mean   float64 `mapstructure:"mean" yaml:"mean"`
	StdDev float64 `mapstructure:"stddev" yaml:"stddev"`
	Low    float64 `mapstructure:"low" yaml:"low"`
	High   float64 `mapstructure:"high" yaml:"high"`
	Gain   float64 `mapstructure:"gain" yaml:"gain"`
	Value  float64 `mapstructure:"value" yaml:"value"`
}

// DefaultSpec returns the default weight initializer, a Gaussian with
// mean 0 and standard deviation 0.01.
func DefaultSpec() Spec {
	return Spec{Type: Gaussian, Mean: 0, StdDev: 0.01}
}

// Validate checks a Spec for errors
func (s Spec) Validate() error {
	switch s.Type {
	case Gaussian:
		if s.StdDev <= 0 {
			return fmt.Errorf("validate: gaussian stddev must be positive, "+
				"have %v", s.StdDev)
		}
	case Uniform:
		if s.Low >= s.High {
			return fmt.Errorf("validate: uniform low (%v) must be less "+
				"than high (%v)", s.Low, s.High)
		}
	case GlorotU, GlorotN, HeU, HeN:
		if s.Gain <= 0 {
			return fmt.Errorf("validate: %v gain must be positive, have %v",
				s.Type, s.Gain)
		}
	case Zeroes, Ones, Constant:
	default:
		return fmt.Errorf("validate: unknown weight initializer %q", s.Type)
	}
	return nil
}

// New returns the InitWFn described by spec
func New(spec Spec) (*InitWFn, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	switch spec.Type {
	case Gaussian:
		return NewGaussian(spec.Mean, spec.StdDev)
	case Uniform:
		return NewUniform(spec.Low, spec.High)
	case GlorotU:
		return NewGlorotU(spec.Gain)
	case GlorotN:
		return NewGlorotN(spec.Gain)
	case HeU:
		return NewHeU(spec.Gain)
	case HeN:
		return NewHeN(spec.Gain)
	case Zeroes:
		return NewZeroes()
	case Ones:
		return NewOnes()
	default:
		return NewConstant(spec.Value)
	}
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type
}
