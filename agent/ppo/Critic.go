package ppo

import (
	"context"
	"fmt"

	"github.com/bebop2/ppo/buffer/rollout"
	"github.com/bebop2/ppo/initwfn"
	"github.com/bebop2/ppo/network"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Critic is a state value function approximated by a neural network
// with a linear, scalar output
type Critic struct {
	*learner

	oldValues *G.Node
	targets   *G.Node

	epsilon float64
	rng     *rand.Rand
}

// NewCritic returns a new Critic for the configuration c. The seed
// seeds the minibatch shuffling.
func NewCritic(c Config, seed uint64) (*Critic, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	hidden, biases, activations, err := c.layers()
	if err != nil {
		return nil, fmt.Errorf("newCritic: %v", err)
	}
	init, err := initwfn.New(c.InitWFn)
	if err != nil {
		return nil, fmt.Errorf("newCritic: %v", err)
	}

	behaviour, err := network.NewMLP(c.StateSize, 1, 1, G.NewGraph(),
		hidden, biases, init.InitWFn(), activations, network.Identity())
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not create value "+
			"function: %v", err)
	}

	cr := &Critic{
		epsilon: c.ClipEpsilon,
		rng:     rand.New(rand.NewSource(seed)),
	}
	cr.learner, err = newLearner(behaviour, c, cr.lossGraph)
	if err != nil {
		return nil, fmt.Errorf("newCritic: %v", err)
	}
	return cr, nil
}

// lossGraph adds the clipped value loss to the graph of the train
// network
func (c *Critic) lossGraph(train network.NeuralNet) (*G.Node, error) {
	g := train.Graph()
	batch := train.BatchSize()

	c.oldValues = G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("oldValues"), G.WithInit(G.Zeroes()))
	c.targets = G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("targets"), G.WithInit(G.Zeroes()))

	// The prediction is a batch x 1 matrix
	prediction, err := G.Reshape(train.Prediction(), tensor.Shape{batch})
	if err != nil {
		return nil, fmt.Errorf("lossGraph: could not reshape "+
			"prediction: %v", err)
	}
	return valueGraph(prediction, c.oldValues, c.targets, c.epsilon)
}

// Predict returns the value of state
func (c *Critic) Predict(state []float64) (float64, error) {
	v, err := c.behaviour.predict(state)
	if err != nil {
		return 0, fmt.Errorf("predict: %v", err)
	}
	return v[0], nil
}

// PredictBatch returns the value of each row of states. The number of
// rows must be the batch size of the Critic.
func (c *Critic) PredictBatch(states *mat.Dense) ([]float64, error) {
	v, err := c.batch.predict(rawRows(states))
	if err != nil {
		return nil, fmt.Errorf("predictBatch: %v", err)
	}
	return v, nil
}

// Update takes epochs passes over batch minimizing the clipped value
// loss. It returns the sum over epochs of the mean minibatch loss.
func (c *Critic) Update(ctx context.Context, batch rollout.Batch,
	oldValues, targets []float64, epochs int) (float64, error) {
	n := batch.Len()
	if len(oldValues) != n || len(targets) != n {
		return 0, fmt.Errorf("update: length mismatch\n\tbatch(%d) "+
			"oldValues(%d) targets(%d)", n, len(oldValues), len(targets))
	}

	return c.fit(ctx, n, epochs, c.rng, func(indices []int) error {
		if err := c.train.SetInput(gatherRows(batch.States,
			indices)); err != nil {
			return err
		}
		if err := let(c.oldValues, rollout.Gather(oldValues,
			indices)); err != nil {
			return err
		}
		return let(c.targets, rollout.Gather(targets, indices))
	})
}

// GobEncode implements the gob.GobEncoder interface
func (c *Critic) GobEncode() ([]byte, error) {
	return c.encode()
}

// GobDecode implements the gob.GobDecoder interface
func (c *Critic) GobDecode(in []byte) error {
	if err := c.decode(in); err != nil {
		return fmt.Errorf("gobDecode: could not decode critic: %v", err)
	}
	return nil
}

// Close releases the machines of the Critic
func (c *Critic) Close() error {
	return c.close()
}
