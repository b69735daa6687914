// Package gae implements generalized advantage estimation, GAE(λ),
// over a full batch of transitions following
// https://arxiv.org/abs/1506.02438.
package gae

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Config describes how advantages are estimated
type Config struct {
	Gamma     float64 `mapstructure:"gamma" yaml:"gamma"`         // Discount factor ℽ
	Lambda    float64 `mapstructure:"lambda" yaml:"lambda"`       // λ for GAE(λ)
	Normalize bool    `mapstructure:"normalize" yaml:"normalize"` // Standardize advantages
}

// DefaultConfig returns the default GAE(λ) configuration: ℽ = 0.99,
// λ = 0.90 with advantage normalization.
func DefaultConfig() Config {
	return Config{
		Gamma:     0.99,
		Lambda:    0.90,
		Normalize: true,
	}
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1], have %v",
			c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: lambda must be in [0, 1], have %v",
			c.Lambda)
	}
	return nil
}

// Estimate computes GAE(λ) advantages and value targets for a batch of
// transitions. All inputs must be aligned and of the same, non-zero
// length N. For each step t:
//
//	δ_t = r_t + ℽ (1 - d_t) v'_t - v_t
//	A_{N-1} = δ_{N-1}
//	A_t = δ_t + (1 - d_t) ℽ λ A_{t+1}
//	target_t = A_t + v_t
//
// A done flag zeroes the bootstrap term, so episode boundaries inside a
// batch are handled without discarding any transitions. Targets are
// always computed from the unnormalized advantages. If c.Normalize is
// true the returned advantages are standardized over the whole batch.
func Estimate(rewards, dones, values, nextValues []float64,
	c Config) ([]float64, []float64, error) {
	n := len(rewards)
	if n == 0 {
		return nil, nil, fmt.Errorf("estimate: empty batch")
	}
	if len(dones) != n || len(values) != n || len(nextValues) != n {
		return nil, nil, fmt.Errorf("estimate: length mismatch\n\t"+
			"rewards(%d) dones(%d) values(%d) nextValues(%d)", n, len(dones),
			len(values), len(nextValues))
	}
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("estimate: %v", err)
	}

	notDone := make([]float64, n)
	for i, d := range dones {
		notDone[i] = 1 - d
	}

	// TD residuals
	stateVals := mat.NewVecDense(n, append([]float64(nil), values...))
	nextStateVals := mat.NewVecDense(n, append([]float64(nil), nextValues...))
	nextStateVals.MulElemVec(nextStateVals, mat.NewVecDense(n, notDone))

	deltas := mat.NewVecDense(n, append([]float64(nil), rewards...))
	deltas.AddScaledVec(deltas, c.Gamma, nextStateVals)
	deltas.SubVec(deltas, stateVals)

	// Backward recursion
	adv := make([]float64, n)
	adv[n-1] = deltas.AtVec(n - 1)
	for t := n - 2; t >= 0; t-- {
		adv[t] = deltas.AtVec(t) + notDone[t]*c.Gamma*c.Lambda*adv[t+1]
	}

	targets := make([]float64, n)
	floats.AddTo(targets, adv, values)

	if c.Normalize {
		adv = Normalize(adv)
	}
	return adv, targets, nil
}

// Normalize returns x standardized to mean 0 and (population) standard
// deviation 1. A small constant is added to the standard deviation so
// that a constant x maps to all zeroes.
func Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}

	mean, variance := stat.MeanVariance(x, nil)
	n := float64(len(x))
	if len(x) > 1 {
		variance *= (n - 1) / n
	} else {
		variance = 0
	}
	std := math.Sqrt(variance) + 1e-8

	copy(out, x)
	floats.AddConst(-mean, out)
	floats.Scale(1/std, out)
	return out
}
