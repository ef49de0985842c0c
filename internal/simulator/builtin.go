package simulator

import (
	"context"
	"math"
)

const gravity = 9.80665

// Odometry walks the robot around a circle and integrates a drifting odometry
// estimate alongside the true pose.
type Odometry struct {
	ID       string
	Speed    float64 // m/s
	TurnRate float64 // rad/s
	Drift    float64 // standard deviation of odometry error per metre travelled
}

// Name returns the simulator identity.
func (o Odometry) Name() string { return o.ID }

// Advance moves the true pose and the odometry estimate by one step.
func (o Odometry) Advance(_ context.Context, step Step, s State) (State, error) {
	dt := step.Elapsed.Seconds()
	dTheta := o.TurnRate * dt
	dist := o.Speed * dt

	s.Pose = integrate(s.Pose, dist, dTheta)

	rng := Noise(step, o.ID)
	errScale := o.Drift * math.Abs(dist)
	odomDist := dist + rng.NormFloat64()*errScale
	odomTheta := dTheta + rng.NormFloat64()*errScale
	s.Odometry = integrate(s.Odometry, odomDist, odomTheta)
	return s, nil
}

func integrate(p Pose, dist, dTheta float64) Pose {
	heading := p.Theta + dTheta/2
	return Pose{
		X:     p.X + dist*math.Cos(heading),
		Y:     p.Y + dist*math.Sin(heading),
		Theta: wrapAngle(p.Theta + dTheta),
	}
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Battery drains the battery linearly and derives the pack voltage.
type Battery struct {
	ID             string
	DrainPerSecond float64 // fraction of a full charge
}

// Name returns the simulator identity.
func (b Battery) Name() string { return b.ID }

// Advance drains the battery by one step.
func (b Battery) Advance(_ context.Context, step Step, s State) (State, error) {
	s.Battery -= b.DrainPerSecond * step.Elapsed.Seconds()
	if s.Battery < 0 {
		s.Battery = 0
	}
	s.Voltage = emptyVoltage + (fullVoltage-emptyVoltage)*s.Battery
	return s, nil
}

// Sensors produces gyroscope and accelerometer readings consistent with the
// robot's motion plus gaussian noise.
type Sensors struct {
	ID       string
	TurnRate float64 // rad/s reported on the z gyro axis
	Noise    float64
}

// Name returns the simulator identity.
func (n Sensors) Name() string { return n.ID }

// Advance samples new sensor readings.
func (n Sensors) Advance(_ context.Context, step Step, s State) (State, error) {
	rng := Noise(step, n.ID)
	s.Gyro = Vec3{
		X: rng.NormFloat64() * n.Noise,
		Y: rng.NormFloat64() * n.Noise,
		Z: n.TurnRate + rng.NormFloat64()*n.Noise,
	}
	s.Accel = Vec3{
		X: rng.NormFloat64() * n.Noise,
		Y: rng.NormFloat64() * n.Noise,
		Z: gravity + rng.NormFloat64()*n.Noise,
	}
	return s, nil
}

// Overview designates the first robot of the fleet as leader and bumps the
// heartbeat counter every pass.
type Overview struct {
	ID string
}

// Name returns the simulator identity.
func (o Overview) Name() string { return o.ID }

// Advance updates role and heartbeat.
func (o Overview) Advance(_ context.Context, step Step, s State) (State, error) {
	if step.Index == 0 {
		s.Role = RoleLeader
	} else {
		s.Role = RoleFollower
	}
	s.Heartbeat++
	return s, nil
}
