package simulator

import "math"

// Pose is a planar position and heading in field coordinates (metres, radians).
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Vec3 is a three-axis sensor reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Robot roles assigned by the overview simulator.
const (
	RoleLeader   = "leader"
	RoleFollower = "follower"
)

// State is the simulated state of one robot. It holds only values so a copy
// never aliases another robot's state.
type State struct {
	Pose      Pose    `json:"pose"`
	Odometry  Pose    `json:"odometry"`
	Battery   float64 `json:"battery"`
	Voltage   float64 `json:"voltage"`
	Gyro      Vec3    `json:"gyro"`
	Accel     Vec3    `json:"accel"`
	Role      string  `json:"role"`
	Heartbeat uint64  `json:"heartbeat"`
}

const (
	fullVoltage  = 16.8
	emptyVoltage = 13.2
	// spacing between robots along the touch line at start-up
	startSpacing = 0.75
)

// InitialState returns the starting state for the robot at index of total.
// Robots line up along the negative y touch line, centred on x=0, facing the
// field.
func InitialState(index, total int) State {
	x := 0.0
	if total > 1 {
		x = (float64(index) - float64(total-1)/2) * startSpacing
	}
	pose := Pose{X: x, Y: -3, Theta: math.Pi / 2}
	return State{
		Pose:     pose,
		Odometry: pose,
		Battery:  1,
		Voltage:  fullVoltage,
		Accel:    Vec3{Z: gravity},
	}
}
