package bebop

import "context"

// Link connects the environment to the middleware driving the two
// drones. Commands are fire-and-forget; sensor readings are delivered
// through subscriptions, possibly from other goroutines.
type Link interface {
	Publish(d Drone, cmd Twist) error
	Takeoff(d Drone) error
	Land(d Drone) error
	ResetPose(d Drone) error
	ResetWorld() error

	// Advance lets the world run for a single control step
	Advance(ctx context.Context) error

	// Subscribe calls fn with every odometry reading of d until the
	// returned cancel function is called
	Subscribe(d Drone, fn func(Odometry)) (cancel func(), err error)
}
