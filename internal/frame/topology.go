// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"errors"
	"fmt"
)

const (
	// MaxCameras is the largest camera count the device firmware supports.
	MaxCameras = 10
	// MaxStereoPairs is the number of stereo channels the device exposes.
	MaxStereoPairs = 5

	// InertialBlockSize is the size of the IMU block leading every frame:
	// six big-endian int16 words (accel x,y,z then gyro x,y,z).
	InertialBlockSize = 12

	DefaultWidth  = 752
	DefaultHeight = 480
)

var (
	// ErrFrameSizeMismatch is returned when a raw buffer does not tile
	// exactly into the configured topology.
	ErrFrameSizeMismatch = errors.New("frame size mismatch")
	// ErrInvalidTopology is returned for camera count / layout combinations
	// the device cannot produce.
	ErrInvalidTopology = errors.New("invalid camera topology")
)

// Layout is the config code describing how camera sub-frames are wired into
// the payload.
type Layout int

const (
	// LayoutPlanar places each camera's full image one after another.
	LayoutPlanar Layout = iota
	// LayoutRowInterleaved emits row r of every camera in turn.
	LayoutRowInterleaved
	// LayoutPairInterleaved places stereo pairs one after another and
	// alternates rows between the two cameras of a pair.
	LayoutPairInterleaved
)

func (l Layout) String() string {
	switch l {
	case LayoutPlanar:
		return "planar"
	case LayoutRowInterleaved:
		return "row-interleaved"
	case LayoutPairInterleaved:
		return "pair-interleaved"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Topology describes the physical sensor layout. It is fixed once the device
// is initialized.
type Topology struct {
	CameraCount int
	Layout      Layout
	Width       int // pixels per row, one byte per pixel
	Height      int
}

// Validate checks that the topology can be produced by the device.
func (t Topology) Validate() error {
	if t.CameraCount < 1 || t.CameraCount > MaxCameras {
		return fmt.Errorf("%w: camera count %d outside 1-%d", ErrInvalidTopology, t.CameraCount, MaxCameras)
	}
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidTopology, t.Width, t.Height)
	}
	switch t.Layout {
	case LayoutPlanar, LayoutRowInterleaved:
	case LayoutPairInterleaved:
		if t.CameraCount%2 != 0 {
			return fmt.Errorf("%w: %s layout needs an even camera count, got %d", ErrInvalidTopology, t.Layout, t.CameraCount)
		}
	default:
		return fmt.Errorf("%w: unknown config code %d", ErrInvalidTopology, int(t.Layout))
	}
	return nil
}

// PlaneSize is the byte size of one camera image.
func (t Topology) PlaneSize() int {
	return t.Width * t.Height
}

// FrameSize is the exact byte length of a raw capture buffer.
func (t Topology) FrameSize() int {
	return InertialBlockSize + t.CameraCount*t.PlaneSize()
}

// MaxPairs is the upper bound on stereo channels for this topology.
func (t Topology) MaxPairs() int {
	n := t.CameraCount / 2
	if n > MaxStereoPairs {
		n = MaxStereoPairs
	}
	return n
}
