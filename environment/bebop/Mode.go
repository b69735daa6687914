package bebop

import (
	"fmt"
	"strings"
)

// Drone identifies one of the two drones
type Drone int

const (
	// L is the leader, which flies a fixed path
	L Drone = iota

	// R is the follower, which is controlled by the agent
	R
)

func (d Drone) String() string {
	switch d {
	case L:
		return "L"
	case R:
		return "R"
	default:
		return fmt.Sprintf("Drone(%d)", int(d))
	}
}

// Namespace returns the middleware namespace of the drone
func (d Drone) Namespace() string {
	return d.String() + "_bebop2"
}

// Mode selects which drones a command is sent to
type Mode int

const (
	Left Mode = iota
	Right
	Both
)

// ParseMode parses a Mode. Accepted values are "L", "R", and "both",
// in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "left":
		return Left, nil
	case "r", "right":
		return Right, nil
	case "both":
		return Both, nil
	default:
		return 0, fmt.Errorf("parseMode: unknown mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Left:
		return "L"
	case Right:
		return "R"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Includes returns whether commands sent with mode m reach drone d
func (m Mode) Includes(d Drone) bool {
	switch m {
	case Left:
		return d == L
	case Right:
		return d == R
	case Both:
		return d == L || d == R
	default:
		return false
	}
}

// Drones returns the drones reached by mode m
func (m Mode) Drones() []Drone {
	var drones []Drone
	for _, d := range []Drone{L, R} {
		if m.Includes(d) {
			drones = append(drones, d)
		}
	}
	return drones
}
