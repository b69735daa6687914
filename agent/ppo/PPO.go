// Package ppo implements the Proximal Policy Optimization actor-critic
// algorithm with a Gaussian policy over continuous actions.
//
// The agent collects a fixed number of transitions, estimates
// advantages with GAE, and then takes several epochs of minibatch
// steps on the clipped surrogate loss (actor) and the clipped value
// loss (critic). Weights used to act only change once both networks
// have been updated successfully.
package ppo

import (
	"context"
	"fmt"
	"math"

	"github.com/bebop2/ppo/agent"
	"github.com/bebop2/ppo/buffer/gae"
	"github.com/bebop2/ppo/buffer/rollout"
	"github.com/bebop2/ppo/environment"
	"github.com/bebop2/ppo/experiment/checkpointer"
	"github.com/bebop2/ppo/experiment/trackers"
	"github.com/bebop2/ppo/hyperparam"
	"github.com/bebop2/ppo/timestep"
	"github.com/bebop2/ppo/utils/floatutils"
	"github.com/bebop2/ppo/utils/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Names of the files of a checkpoint
const (
	ActorFile  = "Actor.bin"
	CriticFile = "Critic.bin"
	StateFile  = "state.gob"
)

// Phase is the phase of the PPO training cycle
type Phase int

const (
	Collecting Phase = iota
	Updating
)

func (p Phase) String() string {
	switch p {
	case Collecting:
		return "Collecting"
	case Updating:
		return "Updating"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Options holds the collaborators of a PPO agent
type Options struct {
	// CheckpointDir is the root directory of all checkpoints
	CheckpointDir string

	// LearningRate is read once per update. If nil, a fixed learning
	// rate of Config.LearningRate is used.
	LearningRate *hyperparam.LearningRate

	// Recorder receives the training metrics. If nil, metrics are
	// discarded.
	Recorder trackers.Recorder

	Log zerolog.Logger
}

// PPO implements the Proximal Policy Optimization algorithm
type PPO struct {
	config Config

	actor  *Actor
	critic *Critic
	buffer *rollout.Buffer

	lr       *hyperparam.LearningRate
	recorder trackers.Recorder
	log      zerolog.Logger

	store    *checkpointer.Store
	best     *checkpointer.BestAverage
	periodic checkpointer.Checkpointer

	state TrainingState
	phase Phase
	eval  bool
}

// New returns a new PPO agent acting in env. The observation and
// action dimensions of env must match c.
func New(env environment.Environment, c Config, opts Options) (*PPO, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}

	obsSpec, actSpec := env.ObservationSpec(), env.ActionSpec()
	if obsSpec.Shape != c.StateSize || actSpec.Shape != c.ActionSize {
		return nil, errors.Wrapf(ErrConfig, "new: environment has "+
			"observations(%d) actions(%d), config has observations(%d) "+
			"actions(%d)", obsSpec.Shape, actSpec.Shape, c.StateSize,
			c.ActionSize)
	}
	if actSpec.Cardinality != environment.Continuous {
		return nil, errors.Wrapf(ErrConfig, "new: actions must be %v, "+
			"have %v", environment.Continuous, actSpec.Cardinality)
	}

	lr := opts.LearningRate
	if lr == nil {
		var err error
		if lr, err = hyperparam.NewLearningRate(c.LearningRate); err != nil {
			return nil, errors.Wrap(err, "new")
		}
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = trackers.Nop{}
	}

	actor, err := NewActor(c, c.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	critic, err := NewCritic(c, c.Seed+2)
	if err != nil {
		actor.Close()
		return nil, errors.Wrap(err, "new")
	}

	buffer, err := rollout.New(c.StateSize, c.ActionSize, c.BatchSize)
	if err != nil {
		actor.Close()
		critic.Close()
		return nil, errors.Wrap(err, "new")
	}

	p := &PPO{
		config:   c,
		actor:    actor,
		critic:   critic,
		buffer:   buffer,
		lr:       lr,
		recorder: recorder,
		log:      logging.Component(opts.Log, "ppo"),
		state:    TrainingState{BestAverage: math.Inf(-1)},
	}

	p.store, err = checkpointer.NewStore(opts.CheckpointDir, opts.Log,
		checkpointer.Entry{Filename: ActorFile, Object: actor},
		checkpointer.Entry{Filename: CriticFile, Object: critic},
		checkpointer.Entry{Filename: StateFile, Object: stateFile{p}},
	)
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "new")
	}
	p.best = checkpointer.NewBestAverage(p.store)
	p.periodic = checkpointer.NewNStep(c.SaveEvery, p.store)

	return p, nil
}

// SelectAction returns an action to take for the observation obs and
// its log probability. In evaluation mode the mean action is returned.
func (p *PPO) SelectAction(obs *mat.VecDense) (*mat.VecDense, float64,
	error) {
	state := obs.RawVector().Data
	if obs.RawVector().Inc != 1 {
		state = mat.Col(nil, 0, obs)
	}

	var (
		action  []float64
		logProb float64
		err     error
	)
	if p.eval {
		action, err = p.actor.Predict(state)
		if err == nil {
			logProb, err = GaussianLogProb(action, action, p.actor.logStd)
		}
	} else {
		action, logProb, err = p.actor.Sample(state)
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "selectAction")
	}
	return mat.NewVecDense(len(action), action), logProb, nil
}

// Eval sets the agent to evaluation mode: actions are the mean of the
// policy and nothing is learned or saved
func (p *PPO) Eval() { p.eval = true }

// Train sets the agent to training mode
func (p *PPO) Train() { p.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (p *PPO) IsEval() bool { return p.eval }

// Phase returns the current phase of the agent
func (p *PPO) Phase() Phase { return p.phase }

// Observe records a transition. Once BatchSize transitions have been
// recorded the agent updates its networks before returning.
func (p *PPO) Observe(ctx context.Context, t timestep.Transition) error {
	if p.eval {
		return nil
	}
	if err := p.buffer.Add(t); err != nil {
		return errors.Wrap(err, "observe")
	}
	if !p.buffer.Full() {
		return nil
	}

	p.phase = Updating
	defer func() { p.phase = Collecting }()
	return p.Update(ctx)
}

// Update performs a single PPO update on the transitions in the
// buffer. The buffer is cleared whether or not the update succeeds.
// If the update fails, or ctx is cancelled part way, the weights used
// for acting are left unchanged.
func (p *PPO) Update(ctx context.Context) error {
	defer p.buffer.Reset()

	batch, err := p.buffer.Batch()
	if err != nil {
		return errors.Wrap(err, "update")
	}
	if batch.Len() != p.config.BatchSize {
		return fmt.Errorf("update: need %d transitions, have %d",
			p.config.BatchSize, batch.Len())
	}

	lr := p.lr.Get()
	if err := p.actor.setLearningRate(lr); err != nil {
		return errors.Wrap(err, "update")
	}
	if err := p.critic.setLearningRate(lr); err != nil {
		return errors.Wrap(err, "update")
	}

	values, err := p.critic.PredictBatch(batch.States)
	if err != nil {
		return errors.Wrap(err, "update: could not predict values")
	}
	nextValues, err := p.critic.PredictBatch(batch.NextStates)
	if err != nil {
		return errors.Wrap(err, "update: could not predict next values")
	}

	advantages, targets, err := gae.Estimate(batch.Rewards, batch.Dones,
		values, nextValues, p.config.GAE)
	if err != nil {
		return errors.Wrap(err, "update")
	}

	actorLoss, criticLoss, err := p.fit(ctx, batch, advantages, values,
		targets)
	if err != nil {
		if rbErr := p.rollback(); rbErr != nil {
			p.log.Error().Err(rbErr).Msg("could not roll back update")
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			p.log.Warn().Int("replay", p.state.Replay).
				Msg("update abandoned")
			return err
		}
		return errors.Wrap(err, "update")
	}

	if err := p.actor.commit(); err != nil {
		return errors.Wrap(err, "update: could not commit actor")
	}
	if err := p.critic.commit(); err != nil {
		return errors.Wrap(err, "update: could not commit critic")
	}

	newLogProbs, err := p.actor.LogProb(batch.States, batch.Actions)
	if err != nil {
		return errors.Wrap(err, "update")
	}
	diff := make([]float64, len(newLogProbs))
	floats.SubTo(diff, batch.LogProbs, newLogProbs)
	kl := stat.Mean(diff, nil)
	entropy := -stat.Mean(newLogProbs, nil)

	step := p.state.Replay
	p.recorder.Record(trackers.ActorLoss, actorLoss, step)
	p.recorder.Record(trackers.CriticLoss, criticLoss, step)
	p.recorder.Record(trackers.ApproxKL, kl, step)
	p.recorder.Record(trackers.ApproxEntropy, entropy, step)
	p.state.Replay++

	p.log.Debug().
		Int("replay", step).
		Float64("actor_loss", actorLoss).
		Float64("critic_loss", criticLoss).
		Float64("approx_kl", kl).
		Float64("approx_entropy", entropy).
		Float64("learning_rate", lr).
		Msg("update")
	return nil
}

// fit updates the train networks of the actor and then the critic
func (p *PPO) fit(ctx context.Context, batch rollout.Batch, advantages,
	values, targets []float64) (float64, float64, error) {
	actorLoss, err := p.actor.Update(ctx, batch, advantages, batch.LogProbs,
		p.config.Epochs)
	if err != nil {
		return 0, 0, err
	}
	criticLoss, err := p.critic.Update(ctx, batch, values, targets,
		p.config.Epochs)
	if err != nil {
		return 0, 0, err
	}
	if !floatutils.Finite(actorLoss, criticLoss) {
		return 0, 0, errors.Wrapf(ErrNumericalInstability, "actor loss %v, "+
			"critic loss %v", actorLoss, criticLoss)
	}
	return actorLoss, criticLoss, nil
}

// rollback discards uncommitted changes to the train networks
func (p *PPO) rollback() error {
	if err := p.actor.rollback(); err != nil {
		return err
	}
	return p.critic.rollback()
}

// EndEpisode records the score of a finished episode, checkpoints the
// agent when the average score is the best so far or the episode is a
// multiple of SaveEvery, and records the episode metrics. Checkpoint
// failures are logged and reported but do not stop training.
func (p *PPO) EndEpisode(score float64) agent.EpisodeReport {
	p.state.Episode++
	p.state.Scores = append(p.state.Scores, score)

	average := p.state.Average(p.config.AverageWindow)
	report := agent.EpisodeReport{
		Episode:      p.state.Episode,
		Score:        score,
		Average:      average,
		LearningRate: p.lr.Get(),
	}
	if p.eval {
		return report
	}

	saved, err := p.best.Checkpoint(p.state.Episode, average)
	report.SavedBest = saved
	if err != nil {
		p.log.Error().Err(err).Int("episode", p.state.Episode).
			Msg("could not save best checkpoint")
		report.SaveErr = err
	}
	p.state.BestAverage = p.best.Best()

	saved, err = p.periodic.Checkpoint(p.state.Episode, average)
	report.SavedPeriodic = saved
	if err != nil {
		p.log.Error().Err(err).Int("episode", p.state.Episode).
			Msg("could not save periodic checkpoint")
		if report.SaveErr == nil {
			report.SaveErr = err
		}
	}

	p.recorder.Record(trackers.Score, score, p.state.Episode)
	p.recorder.Record(trackers.LearningRate, report.LearningRate,
		p.state.Episode)
	p.recorder.Record(trackers.AverageScore, average, p.state.Episode)
	return report
}

// AbortEpisode discards an episode that could not be finished. The last
// stored transition is marked done so that no value is bootstrapped
// across the discontinuity, and no score is recorded.
func (p *PPO) AbortEpisode() {
	p.buffer.Truncate()
	p.log.Warn().Int("episode", p.state.Episode+1).Msg("episode aborted")
}

// ForceSave saves a checkpoint to the forced directory
func (p *PPO) ForceSave() error {
	if p.eval {
		return nil
	}
	return errors.Wrap(p.store.Force(), "forceSave")
}

// Load restores the weights of the actor and critic from the
// checkpoint in dir. Either both networks are restored or neither is
// changed by a missing file.
func (p *PPO) Load(dir string) error {
	return errors.Wrap(p.store.Load(dir, ActorFile, CriticFile), "load")
}

// LoadState restores the training state from the checkpoint in dir
func (p *PPO) LoadState(dir string) error {
	return errors.Wrap(p.store.Load(dir, StateFile), "loadState")
}

// SetEpisode sets the number of finished episodes, for example when
// resuming training from a checkpoint without its training state
func (p *PPO) SetEpisode(n int) {
	p.state.Episode = n
}

// Episode returns the number of finished episodes
func (p *PPO) Episode() int {
	return p.state.Episode
}

// State returns a copy of the training state
func (p *PPO) State() TrainingState {
	state := p.state
	state.Scores = append([]float64(nil), p.state.Scores...)
	state.BestAverage = p.best.Best()
	return state
}

// Actor returns the policy of the agent
func (p *PPO) Actor() *Actor { return p.actor }

// Critic returns the value function of the agent
func (p *PPO) Critic() *Critic { return p.critic }

// CheckpointDir returns the root directory of the agent's checkpoints
func (p *PPO) CheckpointDir() string { return p.store.Root() }

// Close releases the resources held by the agent
func (p *PPO) Close() error {
	err := p.actor.Close()
	if cErr := p.critic.Close(); err == nil {
		err = cErr
	}
	return err
}
