package experiment

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bebop2/ppo/agent"
	env "github.com/bebop2/ppo/environment"
	"github.com/bebop2/ppo/experiment/tracker"
	ts "github.com/bebop2/ppo/timestep"
	"github.com/bebop2/ppo/utils/logging"
	"github.com/bebop2/ppo/utils/progressbar"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrTooManyAborts is returned when more consecutive episodes than
// allowed were aborted by failing environment steps
var ErrTooManyAborts = errors.New("too many aborted episodes")

// Driver is an Experiment that runs an agent online, learning from
// every transition as it is collected.
//
// A failed environment step aborts the episode: the agent discards
// it and the environment is reset. A cancelled context ends the run
// gracefully with a forced checkpoint of the agent. Any other error,
// such as numerical instability in the agent, ends the run.
type Driver struct {
	env      env.Environment
	agent    agent.Agent
	config   Config
	trackers []tracker.Tracker
	log      zerolog.Logger

	progress *progressbar.ManualProgressBar

	completed int
	aborted   int
	closeOnce sync.Once
	closeErr  error
}

// NewDriver creates and returns a new Driver running agent a in
// environment e. The trackers t receive every TimeStep.
func NewDriver(e env.Environment, a agent.Agent, c Config,
	log zerolog.Logger, t ...tracker.Tracker) (*Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "newDriver")
	}

	return &Driver{
		env:      e,
		agent:    a,
		config:   c,
		trackers: t,
		log:      logging.Component(log, "driver"),
	}, nil
}

// ShowProgress displays a progress bar over the episode budget on out,
// starting at the episodes the agent has already finished. Without an
// episode budget no progress bar is shown.
func (d *Driver) ShowProgress(out io.Writer) {
	if d.config.Episodes <= 0 {
		return
	}
	d.progress = progressbar.NewManualProgressBar(out, 40, d.config.Episodes)
}

// Register registers a tracker.Tracker with the Driver so that data
// generated during the experiment can be tracked and saved
func (d *Driver) Register(t tracker.Tracker) {
	d.trackers = append(d.trackers, t)
}

// Completed returns the number of episodes completed by the Driver
func (d *Driver) Completed() int {
	return d.completed
}

// done returns whether the agent has finished the episode budget. The
// budget counts every episode of the agent, so a resumed agent only
// runs the episodes that remain.
func (d *Driver) done() bool {
	return d.config.Episodes > 0 && d.agent.Episode() >= d.config.Episodes
}

// Run runs episodes until the episode budget is used up or ctx is
// cancelled. Cancellation is not an error: a forced checkpoint is
// written and Run returns nil. The environment is closed when Run
// returns.
func (d *Driver) Run(ctx context.Context) error {
	defer d.Close()

	if d.progress != nil {
		d.progress.SetProgress(d.agent.Episode())
		d.progress.Display()
		defer d.progress.Close()
	}

	for !d.done() {
		_, err := d.RunEpisode(ctx)
		if ctx.Err() != nil {
			return d.interrupt()
		}
		if err != nil {
			d.log.Error().Err(err).Int("completed", d.completed).
				Msg("stopping")
			if saveErr := d.Save(); saveErr != nil {
				d.log.Error().Err(saveErr).Msg("could not save tracked data")
			}
			return err
		}
	}

	d.log.Info().Int("episodes", d.completed).
		Int("total", d.agent.Episode()).Msg("finished")
	return d.Save()
}

// interrupt checkpoints the agent after the run was cancelled
func (d *Driver) interrupt() error {
	d.log.Warn().Int("completed", d.completed).
		Msg("interrupted, saving forced checkpoint")
	if err := d.agent.ForceSave(); err != nil {
		d.log.Error().Err(err).Msg("could not save forced checkpoint")
	}
	if err := d.Save(); err != nil {
		d.log.Error().Err(err).Msg("could not save tracked data")
	}
	return nil
}

// RunEpisode runs a single episode and returns whether it was
// finished. An episode that is cut short by a failing environment step
// is aborted and not finished, but is not an error unless more than
// MaxAborts episodes in a row were aborted.
func (d *Driver) RunEpisode(ctx context.Context) (bool, error) {
	step, err := d.reset(ctx)
	if err != nil {
		return false, err
	}
	d.track(step)

	var score float64
	for !step.Last() {
		action, logProb, err := d.agent.SelectAction(step.Observation)
		if err != nil {
			return false, errors.Wrap(err, "runEpisode: could not select "+
				"action")
		}

		next, err := d.env.Step(ctx, action)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, d.abort(step, err)
		}
		d.track(next)
		score += next.Reward

		t := ts.NewTransition(step, action.RawVector().Data, logProb, next)
		if err := d.agent.Observe(ctx, t); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, errors.Wrap(err, "runEpisode")
		}
		step = next
	}

	d.aborted = 0
	d.completed++
	report := d.agent.EndEpisode(score)

	d.log.Info().
		Int("episode", report.Episode).
		Float64("score", report.Score).
		Float64("average", report.Average).
		Float64("learning_rate", report.LearningRate).
		Bool("saved_best", report.SavedBest).
		Bool("saved_periodic", report.SavedPeriodic).
		Int("steps", step.Number).
		Msg("episode finished")

	if d.progress != nil {
		d.progress.SetSuffix(fmt.Sprintf(" average %.2f", report.Average))
		d.progress.SetProgress(report.Episode)
		d.progress.Display()
	}
	return true, nil
}

// abort discards the current episode after a failed environment step
func (d *Driver) abort(step ts.TimeStep, err error) error {
	d.agent.AbortEpisode()
	d.aborted++
	d.log.Warn().Err(err).Int("step", step.Number).
		Int("consecutive", d.aborted).Msg("step failed, aborting episode")

	if d.config.MaxAborts > 0 && d.aborted > d.config.MaxAborts {
		return errors.Wrapf(ErrTooManyAborts, "%d episodes aborted, last "+
			"error: %v", d.aborted, err)
	}
	return nil
}

// reset resets the environment, retrying failed resets
func (d *Driver) reset(ctx context.Context) (ts.TimeStep, error) {
	var step ts.TimeStep
	err := d.config.resetPolicy().Do(ctx,
		func(ctx context.Context, attempt int) error {
			var err error
			step, err = d.env.Reset(ctx)
			if err != nil {
				d.log.Warn().Err(err).Int("attempt", attempt+1).
					Msg("reset failed")
			}
			return err
		})
	if err != nil {
		return ts.TimeStep{}, errors.Wrap(err, "reset")
	}
	return step, nil
}

// Save saves all the data cached by the trackers to disk
func (d *Driver) Save() error {
	for _, t := range d.trackers {
		if err := t.Save(); err != nil {
			return errors.Wrap(err, "save")
		}
	}
	return nil
}

// Close closes the environment. It is safe to call more than once.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.env.Close()
		if d.closeErr != nil {
			d.log.Error().Err(d.closeErr).Msg("could not close environment")
		}
	})
	return d.closeErr
}

// track tracks the current timestep by caching its data in each tracker
func (d *Driver) track(t ts.TimeStep) {
	for _, tr := range d.trackers {
		tr.Track(t)
	}
}
