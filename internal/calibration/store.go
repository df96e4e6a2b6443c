// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/image/math/f64"

	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

var (
	// ErrCalibrationMissing is returned when a camera has no intrinsics.
	ErrCalibrationMissing = errors.New("calibration missing")
	// ErrCalibrationLoad is returned when the calibration source is
	// missing or malformed.
	ErrCalibrationLoad = errors.New("calibration load failed")
)

// Identity is the 3x3 identity homography.
var Identity = f64.Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}

// CameraIntrinsics holds the pinhole and distortion parameters of one camera.
type CameraIntrinsics struct {
	FocalLength    float64  `json:"f"`
	PrincipalPoint f64.Vec2 `json:"p"`
	K1             float64  `json:"k1"`
	K2             float64  `json:"k2"`
	R1             float64  `json:"r1"`
	R2             float64  `json:"r2"`
}

// StereoHomography holds the rectifying homographies of one stereo pair.
// HLeft and HRight map source pixel coordinates of each side into the
// shared rectified plane.
type StereoHomography struct {
	Pair   int
	Left   int
	Right  int
	HLeft  f64.Mat3
	HRight f64.Mat3

	invLeft  f64.Mat3
	invRight f64.Mat3
}

// Store is the read-only calibration set used while streaming.
type Store struct {
	intrinsics map[int]CameraIntrinsics
	pairs      []StereoHomography
	byCamera   map[int]int // camera index -> position in pairs
}

// NewStore builds a Store. homographies holds the per-camera rectifying
// matrix; cameras without one use the identity. The pair list decides which
// cameras form stereo pairs and in which order pair channels are numbered.
func NewStore(intrinsics map[int]CameraIntrinsics, homographies map[int]f64.Mat3, pairs []frame.Pair) (*Store, error) {
	s := &Store{
		intrinsics: make(map[int]CameraIntrinsics, len(intrinsics)),
		byCamera:   make(map[int]int, 2*len(pairs)),
	}
	for cam, in := range intrinsics {
		s.intrinsics[cam] = in
	}

	lookup := func(cam int) f64.Mat3 {
		if h, ok := homographies[cam]; ok {
			return h
		}
		return Identity
	}
	for i, p := range pairs {
		sh := StereoHomography{
			Pair:   i,
			Left:   p.Left,
			Right:  p.Right,
			HLeft:  lookup(p.Left),
			HRight: lookup(p.Right),
		}
		var ok bool
		if sh.invLeft, ok = Invert(sh.HLeft); !ok {
			return nil, fmt.Errorf("%w: homography of camera %d is singular", ErrCalibrationLoad, p.Left)
		}
		if sh.invRight, ok = Invert(sh.HRight); !ok {
			return nil, fmt.Errorf("%w: homography of camera %d is singular", ErrCalibrationLoad, p.Right)
		}
		s.pairs = append(s.pairs, sh)
		s.byCamera[p.Left] = i
		s.byCamera[p.Right] = i
	}
	return s, nil
}

// Intrinsics returns the parameters of camera cam.
func (s *Store) Intrinsics(cam int) (CameraIntrinsics, bool) {
	if s == nil {
		return CameraIntrinsics{}, false
	}
	in, ok := s.intrinsics[cam]
	return in, ok
}

// Cameras returns the calibrated camera indices in ascending order.
func (s *Store) Cameras() []int {
	if s == nil {
		return nil
	}
	cams := make([]int, 0, len(s.intrinsics))
	for cam := range s.intrinsics {
		cams = append(cams, cam)
	}
	sort.Ints(cams)
	return cams
}

// Pairs returns the stereo homographies in pair-channel order.
func (s *Store) Pairs() []StereoHomography {
	if s == nil {
		return nil
	}
	return s.pairs
}

// Homography returns the rectifying matrix of camera cam, its inverse and the
// pair it belongs to.
func (s *Store) Homography(cam int) (h, inv f64.Mat3, pair int, ok bool) {
	if s == nil {
		return f64.Mat3{}, f64.Mat3{}, 0, false
	}
	i, ok := s.byCamera[cam]
	if !ok {
		return f64.Mat3{}, f64.Mat3{}, 0, false
	}
	sh := s.pairs[i]
	if cam == sh.Left {
		return sh.HLeft, sh.invLeft, i, true
	}
	return sh.HRight, sh.invRight, i, true
}

// Invert returns the inverse of m. ok is false when m is singular.
func Invert(m f64.Mat3) (inv f64.Mat3, ok bool) {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]

	A := e*i - f*h
	B := -(d*i - f*g)
	C := d*h - e*g
	det := a*A + b*B + c*C
	if math.Abs(det) < 1e-12 {
		return f64.Mat3{}, false
	}
	inv = f64.Mat3{
		A, -(b*i - c*h), b*f - c*e,
		B, a*i - c*g, -(a*f - c*d),
		C, -(a*h - b*g), a*e - b*d,
	}
	for k := range inv {
		inv[k] /= det
	}
	return inv, true
}

// Project applies m to the point (x, y). ok is false when the point maps to
// infinity.
func Project(m f64.Mat3, x, y float64) (px, py float64, ok bool) {
	w := m[6]*x + m[7]*y + m[8]
	if w == 0 {
		return 0, 0, false
	}
	return (m[0]*x + m[1]*y + m[2]) / w, (m[3]*x + m[4]*y + m[5]) / w, true
}
