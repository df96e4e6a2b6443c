package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/uvc_stereo/internal/imu"
)

const radToDeg = 180.0 / math.Pi

// Pose is the orientation of the camera rig in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is left at 0; there is no magnetometer on the rig.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * radToDeg,
		Pitch: pitchRad * radToDeg,
	}
}

// FromSample is the accelerometer-only pose of one inertial sample.
func FromSample(s imu.Sample) Pose {
	return ComputePoseFromAccel(s.Accel[0], s.Accel[1], s.Accel[2])
}

// DefaultAlpha weights the integrated gyro against the accelerometer tilt.
const DefaultAlpha = 0.98

// Tracker fuses successive samples with a complementary filter: roll and
// pitch follow the gyro and are pulled towards the accelerometer tilt, yaw
// is gyro only and drifts. Not safe for concurrent use.
type Tracker struct {
	Alpha float64

	pose Pose
	last time.Time
	seen bool
}

// NewTracker returns a Tracker using DefaultAlpha.
func NewTracker() *Tracker {
	return &Tracker{Alpha: DefaultAlpha}
}

// Update feeds one sample and returns the new pose. The first sample, and
// any sample that does not move time forward, resets roll and pitch to the
// accelerometer tilt.
func (t *Tracker) Update(s imu.Sample) Pose {
	tilt := FromSample(s)
	if !t.seen || !s.Timestamp.After(t.last) {
		t.pose.Roll, t.pose.Pitch = tilt.Roll, tilt.Pitch
		t.last = s.Timestamp
		t.seen = true
		return t.pose
	}

	dt := s.Timestamp.Sub(t.last).Seconds()
	t.last = s.Timestamp

	roll := t.pose.Roll + s.Gyro[0]*radToDeg*dt
	pitch := t.pose.Pitch + s.Gyro[1]*radToDeg*dt
	t.pose.Roll = t.Alpha*roll + (1-t.Alpha)*tilt.Roll
	t.pose.Pitch = t.Alpha*pitch + (1-t.Alpha)*tilt.Pitch
	t.pose.Yaw = wrapDegrees(t.pose.Yaw + s.Gyro[2]*radToDeg*dt)
	return t.pose
}

// wrapDegrees maps a into [-180, 180).
func wrapDegrees(a float64) float64 {
	a = math.Mod(a+180, 360)
	if a < 0 {
		a += 360
	}
	return a - 180
}

// Pose returns the last computed pose.
func (t *Tracker) Pose() Pose { return t.pose }
