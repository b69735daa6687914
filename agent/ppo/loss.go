package ppo

import (
	"fmt"
	"math"

	"github.com/bebop2/ppo/utils/floatutils"
	"github.com/bebop2/ppo/utils/op"
	G "gorgonia.org/gorgonia"
)

// stdEpsilon is added to the standard deviation of the policy before
// dividing by it
const stdEpsilon = 1e-8

// GaussianLogProb returns the log density of action under a diagonal
// Gaussian with the given mean and per-dimension log standard
// deviations, summed over the dimensions.
func GaussianLogProb(action, mean, logStd []float64) (float64, error) {
	if len(action) != len(mean) || len(action) != len(logStd) {
		return 0, fmt.Errorf("gaussianLogProb: length mismatch\n\t"+
			"action(%d) mean(%d) logStd(%d)", len(action), len(mean),
			len(logStd))
	}

	var logProb float64
	for j := range action {
		z := (action[j] - mean[j]) / (math.Exp(logStd[j]) + stdEpsilon)
		logProb -= 0.5 * (z*z + 2*logStd[j] + math.Log(2*math.Pi))
	}
	return logProb, nil
}

// SurrogateLoss returns the clipped surrogate objective of PPO negated
// to a loss:
//
//	-mean(min(r·A, clip(r, 1-ε, 1+ε)·A))
//
// The minimum is taken per element, so advantages of either sign are
// handled.
func SurrogateLoss(ratios, advantages []float64, epsilon float64) (float64,
	error) {
	if len(ratios) != len(advantages) {
		return 0, fmt.Errorf("surrogateLoss: length mismatch\n\t"+
			"ratios(%d) advantages(%d)", len(ratios), len(advantages))
	}
	if len(ratios) == 0 {
		return 0, fmt.Errorf("surrogateLoss: empty batch")
	}

	var sum float64
	for i, r := range ratios {
		unclipped := r * advantages[i]
		clipped := floatutils.Clip(r, 1-epsilon, 1+epsilon) * advantages[i]
		sum += math.Min(unclipped, clipped)
	}
	return -sum / float64(len(ratios)), nil
}

// ClippedValueLoss returns the clipped value loss
//
//	clipped = old + clip(new - old, -ε, ε)
//	loss = ½ mean(max((t - clipped)², (t - new)²))
func ClippedValueLoss(newValues, oldValues, targets []float64,
	epsilon float64) (float64, error) {
	n := len(newValues)
	if len(oldValues) != n || len(targets) != n {
		return 0, fmt.Errorf("clippedValueLoss: length mismatch\n\t"+
			"new(%d) old(%d) targets(%d)", n, len(oldValues), len(targets))
	}
	if n == 0 {
		return 0, fmt.Errorf("clippedValueLoss: empty batch")
	}

	var sum float64
	for i := range newValues {
		clipped := oldValues[i] +
			floatutils.Clip(newValues[i]-oldValues[i], -epsilon, epsilon)
		clippedErr := math.Pow(targets[i]-clipped, 2)
		unclippedErr := math.Pow(targets[i]-newValues[i], 2)
		sum += math.Max(clippedErr, unclippedErr)
	}
	return 0.5 * sum / float64(n), nil
}

// surrogateGraph adds the clipped surrogate loss to the graph of
// logProb. Ratios are computed as exp(logProb - oldLogProb).
func surrogateGraph(logProb, oldLogProb, advantages *G.Node,
	epsilon float64) (*G.Node, error) {
	diff, err := G.Sub(logProb, oldLogProb)
	if err != nil {
		return nil, fmt.Errorf("surrogateGraph: could not compute log "+
			"ratio: %v", err)
	}
	ratio, err := G.Exp(diff)
	if err != nil {
		return nil, fmt.Errorf("surrogateGraph: could not compute "+
			"ratio: %v", err)
	}

	unclipped, err := G.HadamardProd(ratio, advantages)
	if err != nil {
		return nil, fmt.Errorf("surrogateGraph: %v", err)
	}

	clippedRatio, err := op.Clip(ratio, 1-epsilon, 1+epsilon)
	if err != nil {
		return nil, fmt.Errorf("surrogateGraph: could not clip ratio: %v",
			err)
	}
	clipped, err := G.HadamardProd(clippedRatio, advantages)
	if err != nil {
		return nil, fmt.Errorf("surrogateGraph: %v", err)
	}

	objective, err := op.Min(unclipped, clipped)
	if err != nil {
		return nil, fmt.Errorf("surrogateGraph: %v", err)
	}
	objective, err = G.Mean(objective)
	if err != nil {
		return nil, fmt.Errorf("surrogateGraph: %v", err)
	}
	return G.Neg(objective)
}

// valueGraph adds the clipped value loss to the graph of prediction
func valueGraph(prediction, oldValues, targets *G.Node,
	epsilon float64) (*G.Node, error) {
	delta, err := G.Sub(prediction, oldValues)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}
	delta, err = op.Clip(delta, -epsilon, epsilon)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: could not clip value "+
			"change: %v", err)
	}
	clipped, err := G.Add(oldValues, delta)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}

	clippedErr, err := G.Sub(targets, clipped)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}
	clippedErr, err = G.Square(clippedErr)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}

	unclippedErr, err := G.Sub(targets, prediction)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}
	unclippedErr, err = G.Square(unclippedErr)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}

	loss, err := op.Max(clippedErr, unclippedErr)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}
	loss, err = G.Mean(loss)
	if err != nil {
		return nil, fmt.Errorf("valueGraph: %v", err)
	}
	return G.HadamardProd(loss, G.NewConstant(0.5))
}
