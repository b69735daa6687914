// Package bebop implements the follower task of two bebop2 drones: the
// agent flies the follower R so that it keeps a fixed distance from
// the leader L.
package bebop

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bebop2/ppo/environment"
	"github.com/bebop2/ppo/timestep"
	"github.com/bebop2/ppo/utils/floatutils"
	"github.com/bebop2/ppo/utils/logging"
	"github.com/bebop2/ppo/utils/retry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNoOdometry is returned when a drone has not reported its odometry
var ErrNoOdometry = errors.New("no odometry received")

// ErrHeight is returned when the drones did not reach the takeoff
// height in time
var ErrHeight = errors.New("takeoff height not reached")

// Observations and actions are 3-dimensional
const dims = 3

// Env is the follower task. Observations are the position of R
// relative to L. Actions are the linear velocity of R, scaled by
// MaxSpeed. The reward is the negated error between the distance of
// the drones and the follow distance.
type Env struct {
	link   Link
	config Config
	mode   Mode
	log    zerolog.Logger

	odometry map[Drone]*Mailbox
	cancels  []func()

	lastStep  timestep.TimeStep
	closeOnce sync.Once
	closeErr  error
}

// New returns a new Env driving the drones over link
func New(link Link, c Config, log zerolog.Logger) (*Env, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	mode, err := ParseMode(c.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	e := &Env{
		link:     link,
		config:   c,
		mode:     mode,
		log:      logging.Component(log, "bebop"),
		odometry: map[Drone]*Mailbox{L: NewMailbox(), R: NewMailbox()},
	}

	for _, d := range []Drone{L, R} {
		box := e.odometry[d]
		cancel, err := link.Subscribe(d, box.Put)
		if err != nil {
			e.unsubscribe()
			return nil, errors.Wrapf(err, "new: could not subscribe to %v "+
				"odometry", d.Namespace())
		}
		e.cancels = append(e.cancels, cancel)
	}
	return e, nil
}

// Reset stops both drones, resets the world and their poses, and
// takes off, waiting until the takeoff height is reached. Readings from
// before the reset are discarded and the first observation is made only
// once both drones have reported their odometry again.
func (e *Env) Reset(ctx context.Context) (timestep.TimeStep, error) {
	if err := e.publish(Both, Twist{}); err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "reset")
	}
	if err := e.link.ResetWorld(); err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "reset: could not "+
			"reset world")
	}
	for _, d := range Both.Drones() {
		if err := e.link.ResetPose(d); err != nil {
			return timestep.TimeStep{}, errors.Wrapf(err, "reset: could "+
				"not reset pose of %v", d)
		}
	}

	for _, box := range e.odometry {
		box.Clear()
	}

	if err := e.Takeoff(ctx, e.mode); err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "reset")
	}
	if err := e.awaitOdometry(ctx); err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "reset")
	}

	obs, _, err := e.observe()
	if err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "reset")
	}
	e.lastStep = timestep.New(timestep.First, 0, obs, 0)
	return e.lastStep, nil
}

// Step commands R with the velocity action and advances the world by
// one control step
func (e *Env) Step(ctx context.Context, action *mat.VecDense) (
	timestep.TimeStep, error) {
	if action.Len() != dims {
		return timestep.TimeStep{}, fmt.Errorf("step: actions must have %d "+
			"dimensions, have %d", dims, action.Len())
	}

	cmd := Twist{Linear: r3.Vec{
		X: floatutils.Clip(action.AtVec(0), -1, 1) * e.config.MaxSpeed,
		Y: floatutils.Clip(action.AtVec(1), -1, 1) * e.config.MaxSpeed,
		Z: floatutils.Clip(action.AtVec(2), -1, 1) * e.config.MaxSpeed,
	}}
	if err := e.publish(Right, cmd); err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "step")
	}
	if err := e.link.Advance(ctx); err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "step")
	}

	obs, distance, err := e.observe()
	if err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "step")
	}

	reward := -math.Abs(distance - e.config.FollowDistance)
	stepType := timestep.Mid
	if distance > e.config.MaxDistance {
		stepType = timestep.Last
	}

	e.lastStep = timestep.New(stepType, reward, obs, e.lastStep.Number+1)
	return e.lastStep, nil
}

// awaitOdometry waits until both drones have reported their odometry,
// for at most as long as the takeoff height is polled
func (e *Env) awaitOdometry(ctx context.Context) error {
	timeout := time.Duration(e.config.HeightPolls) * e.config.HeightInterval
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, d := range Both.Drones() {
		if _, err := e.odometry[d].Wait(wctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(ErrNoOdometry, "drone %v", d)
		}
	}
	return nil
}

// observe returns the position of R relative to L and the distance
// between them
func (e *Env) observe() (*mat.VecDense, float64, error) {
	left, ok := e.odometry[L].Latest()
	if !ok {
		return nil, 0, errors.Wrapf(ErrNoOdometry, "drone %v", L)
	}
	right, ok := e.odometry[R].Latest()
	if !ok {
		return nil, 0, errors.Wrapf(ErrNoOdometry, "drone %v", R)
	}

	d := r3.Sub(right.Position, left.Position)
	obs := mat.NewVecDense(dims, []float64{d.X, d.Y, d.Z})
	return obs, r3.Norm(d), nil
}

// Takeoff takes off the drones of mode and waits until all of them
// have reached the takeoff height
func (e *Env) Takeoff(ctx context.Context, mode Mode) error {
	for _, d := range mode.Drones() {
		if err := e.link.Takeoff(d); err != nil {
			return errors.Wrapf(err, "takeoff: %v", d)
		}
	}

	poll := retry.Policy{
		Attempts:   e.config.HeightPolls,
		Backoff:    e.config.HeightInterval,
		MaxBackoff: e.config.HeightInterval,
	}
	err := poll.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := e.link.Advance(ctx); err != nil {
			return err
		}
		for _, d := range mode.Drones() {
			o, ok := e.odometry[d].Latest()
			if !ok {
				return errors.Wrapf(ErrNoOdometry, "drone %v", d)
			}
			if o.Position.Z < e.config.TakeoffHeight {
				return errors.Wrapf(ErrHeight, "drone %v at %.2f",
					d, o.Position.Z)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "takeoff")
	}
	e.log.Debug().Stringer("mode", mode).Msg("takeoff height reached")
	return nil
}

// Land lands the drones of mode
func (e *Env) Land(mode Mode) error {
	for _, d := range mode.Drones() {
		if err := e.link.Land(d); err != nil {
			return errors.Wrapf(err, "land: %v", d)
		}
	}
	return nil
}

// publish sends cmd to the drones of mode
func (e *Env) publish(mode Mode, cmd Twist) error {
	for _, d := range mode.Drones() {
		if err := e.link.Publish(d, cmd); err != nil {
			return errors.Wrapf(err, "publish: %v", d)
		}
	}
	return nil
}

// ObservationSpec returns the observation specification of the
// environment. Relative positions are bounded by the maximum distance.
func (e *Env) ObservationSpec() environment.Spec {
	return environment.NewBoxSpec(dims, environment.Observation,
		-e.config.MaxDistance, e.config.MaxDistance)
}

// ActionSpec returns the action specification of the environment
func (e *Env) ActionSpec() environment.Spec {
	return environment.NewBoxSpec(dims, environment.Action, -1, 1)
}

// Close stops and lands the drones and unsubscribes from their
// odometry. It is safe to call more than once.
func (e *Env) Close() error {
	e.closeOnce.Do(func() {
		err := e.publish(Both, Twist{})
		if landErr := e.Land(e.mode); err == nil {
			err = landErr
		}
		e.unsubscribe()
		e.closeErr = err
	})
	return e.closeErr
}

func (e *Env) unsubscribe() {
	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil
}

func (e *Env) String() string {
	return fmt.Sprintf("Bebop2Follower(mode=%v, distance=%v)", e.mode,
		e.config.FollowDistance)
}
