package ppo

import (
	"context"
	"fmt"
	"math"

	"github.com/bebop2/ppo/buffer/rollout"
	"github.com/bebop2/ppo/initwfn"
	"github.com/bebop2/ppo/network"
	"github.com/bebop2/ppo/utils/floatutils"
	"github.com/bebop2/ppo/utils/op"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Actor is a Gaussian policy with a state-dependent mean predicted by
// a neural network and a fixed, state-independent standard deviation.
// The mean is squashed by tanh so that it lies in [-1, 1].
type Actor struct {
	*learner

	// Inputs to the loss on the train graph
	actions     *G.Node
	oldLogProbs *G.Node
	advantages  *G.Node

	actionDims int
	logStd     []float64
	epsilon    float64

	noise distuv.Uniform
	rng   *rand.Rand
}

// NewActor returns a new Actor for the configuration c. The seed seeds
// both the exploration noise and the minibatch shuffling.
func NewActor(c Config, seed uint64) (*Actor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	hidden, biases, activations, err := c.layers()
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}
	init, err := initwfn.New(c.InitWFn)
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}

	behaviour, err := network.NewMLP(c.StateSize, 1, c.ActionSize,
		G.NewGraph(), hidden, biases, init.InitWFn(), activations,
		network.TanH())
	if err != nil {
		return nil, fmt.Errorf("newActor: could not create policy: %v", err)
	}

	a := &Actor{
		actionDims: c.ActionSize,
		logStd:     c.logStd(),
		epsilon:    c.ClipEpsilon,
		noise: distuv.Uniform{
			Min: -1,
			Max: 1,
			Src: rand.NewSource(seed),
		},
		rng: rand.New(rand.NewSource(seed + 1)),
	}

	a.learner, err = newLearner(behaviour, c, a.lossGraph)
	if err != nil {
		return nil, fmt.Errorf("newActor: %v", err)
	}
	return a, nil
}

// lossGraph adds the clipped surrogate loss to the graph of the train
// network
func (a *Actor) lossGraph(train network.NeuralNet) (*G.Node, error) {
	g := train.Graph()
	batch := train.BatchSize()

	a.actions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, a.actionDims), G.WithName("actions"),
		G.WithInit(G.Zeroes()))
	a.oldLogProbs = G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("oldLogProbs"), G.WithInit(G.Zeroes()))
	a.advantages = G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("advantages"), G.WithInit(G.Zeroes()))

	logProb, err := op.GaussianLogPdfFixedStd(train.Prediction(), a.actions,
		a.logStd)
	if err != nil {
		return nil, err
	}
	return surrogateGraph(logProb, a.oldLogProbs, a.advantages, a.epsilon)
}

// Predict returns the mean action in state
func (a *Actor) Predict(state []float64) ([]float64, error) {
	return a.behaviour.predict(state)
}

// Sample samples an action in state. Each dimension of the mean is
// perturbed by uniform noise in [-1, 1] scaled by the standard
// deviation, and the result is clipped to [-1, 1]. The returned log
// probability is that of the clipped action under the Gaussian centred
// at the unperturbed mean.
func (a *Actor) Sample(state []float64) ([]float64, float64, error) {
	mean, err := a.Predict(state)
	if err != nil {
		return nil, 0, fmt.Errorf("sample: %v", err)
	}

	action := make([]float64, len(mean))
	for j := range mean {
		action[j] = floatutils.Clip(
			mean[j]+a.noise.Rand()*math.Exp(a.logStd[j]), -1, 1,
		)
	}

	logProb, err := GaussianLogProb(action, mean, a.logStd)
	if err != nil {
		return nil, 0, fmt.Errorf("sample: %v", err)
	}
	return action, logProb, nil
}

// LogProb returns the log probability of each row of actions in the
// matching row of states. The number of rows must be the batch size of
// the Actor.
func (a *Actor) LogProb(states, actions *mat.Dense) ([]float64, error) {
	n, _ := states.Dims()
	if r, _ := actions.Dims(); r != n {
		return nil, fmt.Errorf("logProb: have %d states but %d actions", n, r)
	}

	means, err := a.batch.predict(rawRows(states))
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	logProbs := make([]float64, n)
	for i := range logProbs {
		mean := means[i*a.actionDims : (i+1)*a.actionDims]
		logProbs[i], err = GaussianLogProb(actions.RawRowView(i), mean,
			a.logStd)
		if err != nil {
			return nil, fmt.Errorf("logProb: %v", err)
		}
	}
	return logProbs, nil
}

// Update takes epochs passes over batch minimizing the clipped
// surrogate loss. It returns the sum over epochs of the mean minibatch
// loss. The behaviour policy is not changed until the update is
// committed.
func (a *Actor) Update(ctx context.Context, batch rollout.Batch,
	advantages, oldLogProbs []float64, epochs int) (float64, error) {
	n := batch.Len()
	if len(advantages) != n || len(oldLogProbs) != n {
		return 0, fmt.Errorf("update: length mismatch\n\tbatch(%d) "+
			"advantages(%d) oldLogProbs(%d)", n, len(advantages),
			len(oldLogProbs))
	}

	return a.fit(ctx, n, epochs, a.rng, func(indices []int) error {
		if err := a.train.SetInput(gatherRows(batch.States,
			indices)); err != nil {
			return err
		}
		if err := let(a.actions, gatherRows(batch.Actions,
			indices)); err != nil {
			return err
		}
		if err := let(a.oldLogProbs, rollout.Gather(oldLogProbs,
			indices)); err != nil {
			return err
		}
		return let(a.advantages, rollout.Gather(advantages, indices))
	})
}

// LogStd returns the fixed log standard deviation of each action
// dimension
func (a *Actor) LogStd() []float64 {
	return append([]float64(nil), a.logStd...)
}

// GobEncode implements the gob.GobEncoder interface
func (a *Actor) GobEncode() ([]byte, error) {
	return a.encode()
}

// GobDecode implements the gob.GobDecoder interface
func (a *Actor) GobDecode(in []byte) error {
	if err := a.decode(in); err != nil {
		return fmt.Errorf("gobDecode: could not decode actor: %v", err)
	}
	return nil
}

// Close releases the machines of the Actor
func (a *Actor) Close() error {
	return a.close()
}

// rawRows returns the backing data of m in row-major order
func rawRows(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

// gatherRows returns the rows of m at the given indices in row-major
// order
func gatherRows(m *mat.Dense, indices []int) []float64 {
	_, c := m.Dims()
	out := make([]float64, 0, len(indices)*c)
	for _, i := range indices {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
