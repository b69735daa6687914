package bebop

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bebop2/ppo/environment"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/spatial/r3"
)

// LoopbackConfig configures a Loopback link
type LoopbackConfig struct {
	// Dt is the duration of a control step in seconds
	Dt float64 `mapstructure:"dt" yaml:"dt"`

	// The leader flies a circle of Radius at AngularSpeed rad/s at
	// Altitude
	Radius       float64 `mapstructure:"radius" yaml:"radius"`
	AngularSpeed float64 `mapstructure:"angular_speed" yaml:"angular_speed"`
	Altitude     float64 `mapstructure:"altitude" yaml:"altitude"`

	// ClimbRate is the vertical speed of a drone taking off
	ClimbRate float64 `mapstructure:"climb_rate" yaml:"climb_rate"`

	// The follower starts at an offset from the leader sampled
	// uniformly within StartSpread in x and y
	StartSpread float64 `mapstructure:"start_spread" yaml:"start_spread"`

	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// DefaultLoopbackConfig returns the default Loopback configuration
func DefaultLoopbackConfig() LoopbackConfig {
	return LoopbackConfig{
		Dt:           0.1,
		Radius:       2.0,
		AngularSpeed: 0.2,
		Altitude:     1.0,
		ClimbRate:    1.0,
		StartSpread:  1.5,
		Seed:         1,
	}
}

// Validate checks a LoopbackConfig for errors
func (c LoopbackConfig) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("validate: dt must be positive, have %v", c.Dt)
	}
	if c.Radius < 0 || c.Altitude <= 0 || c.ClimbRate <= 0 {
		return fmt.Errorf("validate: radius (%v), altitude (%v), and climb "+
			"rate (%v) must be positive", c.Radius, c.Altitude, c.ClimbRate)
	}
	if c.StartSpread < 0 {
		return fmt.Errorf("validate: start spread must be non-negative, "+
			"have %v", c.StartSpread)
	}
	return nil
}

// drone is the kinematic state of a single drone in a Loopback
type drone struct {
	position r3.Vec
	velocity r3.Vec
	command  r3.Vec
	flying   bool

	// climbing is true from takeoff until the altitude is reached
	climbing bool
}

// Loopback is an in-process Link with no dynamics. The leader follows
// a circle while the follower integrates its commanded velocity. It
// stands in for the middleware when no simulator is available.
type Loopback struct {
	config  LoopbackConfig
	starter environment.Starter

	mu     sync.Mutex
	t      float64
	drones [2]drone
	subs   map[Drone]map[int]func(Odometry)
	nextID int
}

// NewLoopback returns a new Loopback link
func NewLoopback(c LoopbackConfig) *Loopback {
	spread := r1.Interval{Min: -c.StartSpread, Max: c.StartSpread}
	bounds := []r1.Interval{spread, spread}

	l := &Loopback{
		config:  c,
		starter: environment.NewUniformStarter(bounds, c.Seed),
		subs:    map[Drone]map[int]func(Odometry){L: {}, R: {}},
	}
	l.ResetWorld()
	return l
}

// Publish implements the Link interface. Commands to a landed drone
// are ignored.
func (l *Loopback) Publish(d Drone, cmd Twist) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.drones[d].flying {
		l.drones[d].command = cmd.Linear
	}
	return nil
}

// Takeoff implements the Link interface
func (l *Loopback) Takeoff(d Drone) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.drones[d].flying {
		l.drones[d].flying = true
		l.drones[d].climbing = true
	}
	return nil
}

// Land implements the Link interface
func (l *Loopback) Land(d Drone) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drones[d] = drone{position: r3.Vec{
		X: l.drones[d].position.X,
		Y: l.drones[d].position.Y,
	}}
	return nil
}

// ResetPose implements the Link interface
func (l *Loopback) ResetPose(d Drone) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drones[d].velocity = r3.Vec{}
	l.drones[d].command = r3.Vec{}
	return nil
}

// ResetWorld implements the Link interface. The leader is placed on its
// circle and the follower at a random offset from it, both landed.
func (l *Loopback) ResetWorld() error {
	offset := l.starter.Start()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.t = 0
	l.drones[L] = drone{position: r3.Vec{X: l.config.Radius}}
	l.drones[R] = drone{position: r3.Vec{
		X: l.config.Radius + offset.AtVec(0),
		Y: offset.AtVec(1),
	}}
	return nil
}

// Advance implements the Link interface
func (l *Loopback) Advance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	dt := l.config.Dt
	l.t += dt
	for d := range l.drones {
		l.advance(Drone(d), dt)
	}
	readings := map[Drone]Odometry{
		L: l.odometry(L),
		R: l.odometry(R),
	}
	subs := make(map[Drone][]func(Odometry))
	for d, fns := range l.subs {
		for _, fn := range fns {
			subs[d] = append(subs[d], fn)
		}
	}
	l.mu.Unlock()

	for d, fns := range subs {
		for _, fn := range fns {
			fn(readings[d])
		}
	}
	return nil
}

// advance integrates the state of drone d over dt. The caller must
// hold the lock.
func (l *Loopback) advance(d Drone, dt float64) {
	s := &l.drones[d]
	if !s.flying {
		s.velocity = r3.Vec{}
		return
	}

	prev := s.position
	switch {
	case d == L:
		angle := l.config.AngularSpeed * l.t
		s.position.X = l.config.Radius * math.Cos(angle)
		s.position.Y = l.config.Radius * math.Sin(angle)
	default:
		s.position.X += s.command.X * dt
		s.position.Y += s.command.Y * dt
		if !s.climbing {
			s.position.Z = math.Max(0, s.position.Z+s.command.Z*dt)
		}
	}

	if s.climbing {
		s.position.Z = math.Min(l.config.Altitude,
			s.position.Z+l.config.ClimbRate*dt)
		s.climbing = s.position.Z < l.config.Altitude
	}
	s.velocity = r3.Scale(1/dt, r3.Sub(s.position, prev))
}

// odometry returns the reading of drone d. The caller must hold the
// lock.
func (l *Loopback) odometry(d Drone) Odometry {
	return Odometry{
		Position: l.drones[d].position,
		Velocity: l.drones[d].velocity,
		Stamp:    time.Unix(0, 0).Add(time.Duration(l.t * float64(time.Second))),
	}
}

// Subscribe implements the Link interface. The current reading is
// delivered immediately.
func (l *Loopback) Subscribe(d Drone, fn func(Odometry)) (func(), error) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[d][id] = fn
	reading := l.odometry(d)
	l.mu.Unlock()

	fn(reading)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[d], id)
		})
	}, nil
}
