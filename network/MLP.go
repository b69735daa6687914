package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// mlp implements a multi-layered perceptron
type mlp struct {
	g          *G.ExprGraph
	layers     []*fcLayer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	// Data needed for gobbing and cloning
	hiddenSizes []int
	biases      []bool
	activations []*Activation
	outputAct   *Activation

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
}

// NewMLP creates and returns a new multi-layered perceptron with
// outputs output nodes. The graph parameter g is populated with the MLP.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// layer with a bias unit and activation outputAct is always added such
// that given any input, the output will have outputs columns. Bias
// units and activations of the hidden layers are given by biases and
// activations. The parameter init determines the weight initialization
// scheme of all weight matrices; biases are always initialized to 0.
//
// The function works such that for index i, hiddenSizes[i] is the
// number of nodes in hidden layer i; biases[i] is true if the
// hidden layer will contain a bias unit and false otherwise; and
// activations[i] is the activation function for hidden layer i.
func NewMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, outputAct *Activation) (NeuralNet, error) {
	if features <= 0 || batch <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("newMLP: features (%d), batch (%d), and "+
			"outputs (%d) must be positive", features, batch, outputs)
	}

	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newMLP: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	for i, size := range hiddenSizes {
		if size <= 0 {
			return nil, fmt.Errorf("newMLP: hidden layer %d has "+
				"non-positive size %d", i, size)
		}
		if activations[i] == nil {
			return nil, fmt.Errorf("newMLP: nil activation for hidden "+
				"layer %d", i)
		}
	}
	if outputAct == nil {
		outputAct = Identity()
	}

	// Set up the input node
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// Add the final layer predicting the outputs
	sizes := append(append([]int{}, hiddenSizes...), outputs)
	layerBiases := append(append([]bool{}, biases...), true)
	layerActs := append(append([]*Activation{}, activations...), outputAct)

	layers := addfcLayers(g, sizes, layerBiases, layerActs, init, features)

	// Create the network and run the forward pass on the input node
	network := mlp{
		g:           g,
		layers:      layers,
		input:       input,
		numOutputs:  outputs,
		numInputs:   features,
		batchSize:   batch,
		hiddenSizes: append([]int{}, hiddenSizes...),
		biases:      append([]bool{}, biases...),
		activations: append([]*Activation{}, activations...),
		outputAct:   outputAct,
	}
	_, err := network.fwd(input)
	if err != nil {
		msg := "newMLP: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// Graph returns the computational graph of the mlp.
func (e *mlp) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones an mlp
func (e *mlp) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones an mlp to a new computational graph with a new
// input batch size. The clone starts with the same weights as e.
func (e *mlp) CloneWithBatch(batchSize int) (NeuralNet, error) {
	net, err := NewMLP(e.numInputs, batchSize, e.numOutputs, G.NewGraph(),
		e.hiddenSizes, e.biases, G.Zeroes(), e.activations, e.outputAct)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}

	if err := net.Set(e); err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return net, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *mlp) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (e *mlp) Features() int {
	return e.numInputs
}

// Outputs returns the number of outputs from the network
func (e *mlp) Outputs() int {
	return e.numOutputs
}

// SetInput sets the value of the input node before running the forward
// pass. The input is copied.
func (e *mlp) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	backing := make([]float64, len(input))
	copy(backing, input)

	inputTensor := tensor.New(
		tensor.WithBacking(backing),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of an mlp to be equal to the weights of another
// network with the same architecture. If the architectures differ, an
// error is returned and the weights of dest are not changed.
func (dest *mlp) Set(source NeuralNet) error {
	return set(dest.Learnables(), source.Learnables())
}

// Learnables returns the learnable nodes in an mlp
func (e *mlp) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		e.learnables = e.computeLearnables()
	}
	return e.learnables
}

// computeLearnables computes all the learnables for the network
func (e *mlp) computeLearnables() G.Nodes {
	learnables := make([]*G.Node, 0, 2*len(e.layers))

	for i := range e.layers {
		learnables = append(learnables, e.layers[i].Weights())
		if bias := e.layers[i].Bias(); bias != nil {
			learnables = append(learnables, bias)
		}
	}
	return G.Nodes(learnables)
}

// Model returns the learnables nodes with their gradients.
func (e *mlp) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		model := make([]G.ValueGrad, 0, 2*len(e.layers))
		for _, node := range e.Learnables() {
			model = append(model, node)
		}
		e.model = model
	}
	return e.model
}

// fwd performs the forward pass of the mlp on the input node
func (e *mlp) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}

	e.prediction = pred
	return pred, nil
}

// Prediction returns the node of the computational graph the stores
// the output of the mlp
func (e *mlp) Prediction() *G.Node {
	return e.prediction
}

// layerData is the serialized form of a single learnable
type layerData struct {
	Shape []int
	Data  []float64
}

// GobEncode implements the gob.GobEncoder interface. The architecture
// is encoded followed by the shape and data of every learnable.
func (e *mlp) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	err := enc.Encode(e.numOutputs)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of outputs")
	}

	err = enc.Encode(e.numInputs)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode number of inputs")
	}

	err = enc.Encode(e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode batch size")
	}

	err = enc.Encode(e.hiddenSizes)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes")
	}

	err = enc.Encode(e.biases)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode biases")
	}

	err = enc.Encode(append(append([]*Activation{}, e.activations...),
		e.outputAct))
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations")
	}

	learnables := e.Learnables()
	layers := make([]layerData, len(learnables))
	for i, node := range learnables {
		data, err := Values(node)
		if err != nil {
			return nil, fmt.Errorf("gobencode: %v", err)
		}
		layers[i] = layerData{Shape: node.Shape().Clone(), Data: data}
	}
	err = enc.Encode(layers)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode layers: %v", err)
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The decoded mlp is
// built on a new computational graph.
func (e *mlp) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var numOutputs int
	err := dec.Decode(&numOutputs)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode number of outputs")
	}

	var numInputs int
	err = dec.Decode(&numInputs)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode number of inputs")
	}

	var batchSize int
	err = dec.Decode(&batchSize)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode batch size")
	}

	var hiddenSizes []int
	err = dec.Decode(&hiddenSizes)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes")
	}

	var biases []bool
	err = dec.Decode(&biases)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode biases")
	}

	var activations []*Activation
	err = dec.Decode(&activations)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode activations")
	}
	if len(activations) != len(hiddenSizes)+1 {
		return fmt.Errorf("gobdecode: invalid number of activations")
	}

	var layers []layerData
	err = dec.Decode(&layers)
	if err != nil {
		return fmt.Errorf("gobdecode: could not decode layers: %v", err)
	}

	// Create a new MLP
	net, err := NewMLP(numInputs, batchSize, numOutputs, G.NewGraph(),
		hiddenSizes, biases, G.Zeroes(), activations[:len(hiddenSizes)],
		activations[len(hiddenSizes)])
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new MLP: %v", err)
	}
	newMLP := net.(*mlp)

	learnables := newMLP.Learnables()
	if len(learnables) != len(layers) {
		return fmt.Errorf("gobdecode: want %d layers, have %d",
			len(learnables), len(layers))
	}
	for i, node := range learnables {
		if !node.Shape().Eq(tensor.Shape(layers[i].Shape)) {
			return fmt.Errorf("gobdecode: shape mismatch at layer %d"+
				"\n\twant(%v)\n\thave(%v)", i, node.Shape(), layers[i].Shape)
		}
		weights := tensor.New(
			tensor.WithShape(layers[i].Shape...),
			tensor.WithBacking(layers[i].Data),
		)
		if err := G.Let(node, weights); err != nil {
			return fmt.Errorf("gobdecode: could not set layer %d: %v", i, err)
		}
	}

	*e = *newMLP
	return nil
}

// Decode decodes a network previously encoded with gob, such as one
// stored in a checkpoint.
func Decode(in []byte) (NeuralNet, error) {
	net := &mlp{}
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(net); err != nil {
		return nil, fmt.Errorf("decode: %v", err)
	}
	return net, nil
}
