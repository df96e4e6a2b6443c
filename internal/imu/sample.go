// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"time"

	"golang.org/x/image/math/f64"
)

const (
	// AccelScale is counts per g at the ±2g full-scale setting.
	AccelScale = 16384.0
	// GyroScale is counts per deg/s at the ±250°/s full-scale setting.
	GyroScale = 131.0

	DegToRad = 2 * math.Pi / 360.0

	// StandardGravity in m/s².
	StandardGravity = 9.80665
)

// Sample is one inertial reading in physical units.
type Sample struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Accel     f64.Vec3  `json:"accel"` // g
	Gyro      f64.Vec3  `json:"gyro"`  // rad/s
}

// AccelMS2 returns the acceleration in m/s².
func (s Sample) AccelMS2() f64.Vec3 {
	return f64.Vec3{
		s.Accel[0] * StandardGravity,
		s.Accel[1] * StandardGravity,
		s.Accel[2] * StandardGravity,
	}
}

// Scale converts raw counts to physical units.
func Scale(r Raw) (accel, gyro f64.Vec3) {
	accel = f64.Vec3{
		float64(r.Ax) / AccelScale,
		float64(r.Ay) / AccelScale,
		float64(r.Az) / AccelScale,
	}
	gyro = f64.Vec3{
		float64(r.Gx) / GyroScale * DegToRad,
		float64(r.Gy) / GyroScale * DegToRad,
		float64(r.Gz) / GyroScale * DegToRad,
	}
	return accel, gyro
}

// Convert decodes an inertial block and scales it into a Sample.
func Convert(block []byte, ts time.Time, seq uint64) Sample {
	accel, gyro := Scale(Decode(block))
	return Sample{
		Sequence:  seq,
		Timestamp: ts,
		Accel:     accel,
		Gyro:      gyro,
	}
}
