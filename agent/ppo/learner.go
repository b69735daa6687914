package ppo

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/bebop2/ppo/network"
	"github.com/bebop2/ppo/solver"
	"github.com/bebop2/ppo/utils/floatutils"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// predictor runs the forward pass of a network on its own VM
type predictor struct {
	net network.NeuralNet
	vm  G.VM
}

func newPredictor(net network.NeuralNet) *predictor {
	return &predictor{
		net: net,
		vm:  G.NewTapeMachine(net.Graph()),
	}
}

// predict returns the output of the network for a row-major batch of
// inputs
func (p *predictor) predict(input []float64) ([]float64, error) {
	defer p.vm.Reset()

	if err := p.net.SetInput(input); err != nil {
		return nil, err
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, err
	}
	out, err := network.Output(p.net)
	if err != nil {
		return nil, err
	}
	if !floatutils.Finite(out...) {
		return nil, errors.Wrap(ErrNumericalInstability, "predict")
	}
	return out, nil
}

func (p *predictor) close() error {
	return p.vm.Close()
}

// learner holds the three copies of a network shared by the actor and
// the critic: a behaviour network with batch size 1 to act and predict
// on single states, a batch network with the rollout batch size to
// predict on whole rollouts, and a train network with the minibatch
// size on which the loss and its gradient are computed. Weights flow
// from the train network to the others only on commit.
type learner struct {
	behaviour *predictor
	batch     *predictor

	train   network.NeuralNet
	trainVM G.VM
	loss    *G.Node
	solver  *solver.Solver

	minibatch int
	shuffle   bool
}

// newLearner creates a learner from a behaviour network. The lossFn
// builds the loss on the train network's graph; input nodes it needs
// must be created by lossFn on that graph.
func newLearner(behaviour network.NeuralNet, c Config,
	lossFn func(train network.NeuralNet) (*G.Node, error)) (*learner, error) {
	batch, err := behaviour.CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("newLearner: could not create batch "+
			"network: %v", err)
	}

	train, err := behaviour.CloneWithBatch(c.MinibatchSize)
	if err != nil {
		return nil, fmt.Errorf("newLearner: could not create train "+
			"network: %v", err)
	}

	loss, err := lossFn(train)
	if err != nil {
		return nil, fmt.Errorf("newLearner: could not construct loss: %v",
			err)
	}
	if _, err := G.Grad(loss, train.Learnables()...); err != nil {
		return nil, fmt.Errorf("newLearner: could not compute gradient: %v",
			err)
	}
	trainVM := G.NewTapeMachine(train.Graph(),
		G.BindDualValues(train.Learnables()...))

	// The loss is already averaged over the minibatch
	s, err := solver.New(c.Solver, c.LearningRate, 1)
	if err != nil {
		return nil, fmt.Errorf("newLearner: %v", err)
	}

	return &learner{
		behaviour: newPredictor(behaviour),
		batch:     newPredictor(batch),
		train:     train,
		trainVM:   trainVM,
		loss:      loss,
		solver:    s,
		minibatch: c.MinibatchSize,
		shuffle:   c.Shuffle,
	}, nil
}

// fit runs epochs passes over a batch of n samples, taking one solver
// step per minibatch. Before each step, feed must set the train graph's
// inputs to the samples at the given indices. The returned loss is the
// sum over epochs of the mean minibatch loss. If ctx is cancelled
// between steps, fit returns the context's error.
func (l *learner) fit(ctx context.Context, n, epochs int, rng *rand.Rand,
	feed func(indices []int) error) (float64, error) {
	if n%l.minibatch != 0 {
		return 0, fmt.Errorf("fit: minibatch size %d does not divide batch "+
			"size %d", l.minibatch, n)
	}
	numMinibatches := n / l.minibatch

	var total float64
	for epoch := 0; epoch < epochs; epoch++ {
		order := l.order(n, rng)

		var epochLoss float64
		for k := 0; k < numMinibatches; k++ {
			if err := ctx.Err(); err != nil {
				return total, err
			}

			loss, err := l.step(order[k*l.minibatch:(k+1)*l.minibatch], feed)
			if err != nil {
				return total, err
			}
			epochLoss += loss
		}
		total += epochLoss / float64(numMinibatches)
	}

	if err := finite(l.train); err != nil {
		return total, err
	}
	return total, nil
}

// order returns the order in which samples are visited in an epoch
func (l *learner) order(n int, rng *rand.Rand) []int {
	if l.shuffle {
		return rng.Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// step takes a single gradient step on the samples at indices
func (l *learner) step(indices []int, feed func([]int) error) (float64,
	error) {
	defer l.trainVM.Reset()

	if err := feed(indices); err != nil {
		return 0, err
	}
	if err := l.trainVM.RunAll(); err != nil {
		return 0, fmt.Errorf("step: could not run train graph: %v", err)
	}

	loss, err := network.Scalar(l.loss)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	if !floatutils.Finite(loss) {
		return loss, errors.Wrapf(ErrNumericalInstability, "loss %v", loss)
	}

	if err := l.solver.Step(l.train.Model()); err != nil {
		return loss, fmt.Errorf("step: could not step solver: %v", err)
	}
	return loss, nil
}

// commit copies the weights of the train network to the behaviour and
// batch networks
func (l *learner) commit() error {
	if err := l.behaviour.net.Set(l.train); err != nil {
		return err
	}
	return l.batch.net.Set(l.train)
}

// rollback restores the weights of the train network from the
// behaviour network, discarding any uncommitted steps
func (l *learner) rollback() error {
	return l.train.Set(l.behaviour.net)
}

// setLearningRate rebuilds the solver if its learning rate differs
// from lr
func (l *learner) setLearningRate(lr float64) error {
	if lr == l.solver.StepSize() {
		return nil
	}
	s, err := l.solver.WithStepSize(lr)
	if err != nil {
		return err
	}
	l.solver = s
	return nil
}

// learningRate returns the current learning rate of the solver
func (l *learner) learningRate() float64 {
	return l.solver.StepSize()
}

// encode gob encodes the behaviour network
func (l *learner) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(l.behaviour.net); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode sets the weights of all networks to those of an encoded
// network. A network of a different architecture is rejected without
// changing any weights.
func (l *learner) decode(in []byte) error {
	net, err := network.Decode(in)
	if err != nil {
		return err
	}
	if err := finite(net); err != nil {
		return err
	}

	// Set checks shapes before writing, so a failure on the first
	// network leaves every network untouched
	if err := l.behaviour.net.Set(net); err != nil {
		return err
	}
	if err := l.batch.net.Set(net); err != nil {
		return err
	}
	return l.train.Set(net)
}

func (l *learner) close() error {
	var first error
	for _, err := range []error{
		l.behaviour.close(),
		l.batch.close(),
		l.trainVM.Close(),
	} {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// finite returns an error wrapping ErrNumericalInstability if any
// learnable of net is NaN or infinite
func finite(net network.NeuralNet) error {
	for _, node := range net.Learnables() {
		values, err := network.Values(node)
		if err != nil {
			return err
		}
		if !floatutils.Finite(values...) {
			return errors.Wrapf(ErrNumericalInstability, "parameter %v",
				node.Name())
		}
	}
	return nil
}

// let sets the value of an input node to a copy of data
func let(node *G.Node, data []float64) error {
	backing := make([]float64, len(data))
	copy(backing, data)

	t := tensor.New(
		tensor.WithShape(node.Shape().Clone()...),
		tensor.WithBacking(backing),
	)
	return G.Let(node, t)
}
