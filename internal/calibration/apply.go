// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/image/math/f64"

	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

// Image is one camera's calibrated frame. Pixels and Rectified are owned by
// the Image and may be handed to a publisher as-is.
type Image struct {
	Camera    int
	Sequence  uint64
	Timestamp time.Time
	Width     int
	Height    int
	Pixels    []byte

	// Calibrated is false when the stream runs without calibration.
	Calibrated bool
	Intrinsics CameraIntrinsics

	// Pair is the stereo pair the camera belongs to, or -1.
	Pair       int
	Homography *f64.Mat3
	// Rectified is the homography-warped view, set only in depth-map mode.
	Rectified []byte
}

// ApplyOptions are the per-session calibration flags.
type ApplyOptions struct {
	CameraCount int
	Enabled     bool // attach intrinsics; missing entries are errors
	Flip        bool // rotate the image by 180° (both axes)
	DepthMap    bool // produce the rectified view for paired cameras
}

// Applicator turns demultiplexed planes into calibrated images.
type Applicator struct {
	store *Store
	opts  ApplyOptions
}

// NewApplicator returns an Applicator reading from store. store may be nil
// when calibration is disabled.
func NewApplicator(store *Store, opts ApplyOptions) *Applicator {
	return &Applicator{store: store, opts: opts}
}

// Apply copies p into an owned buffer, flips it if requested and attaches
// calibration. It returns ErrCalibrationMissing when the camera is out of
// range or, with calibration enabled, has no intrinsics.
func (a *Applicator) Apply(p frame.Plane, seq uint64, ts time.Time) (Image, error) {
	if p.Camera < 0 || p.Camera >= a.opts.CameraCount {
		return Image{}, fmt.Errorf("%w: camera %d outside 0-%d", ErrCalibrationMissing, p.Camera, a.opts.CameraCount-1)
	}
	intr, haveIntr := a.store.Intrinsics(p.Camera)
	if a.opts.Enabled && !haveIntr {
		return Image{}, fmt.Errorf("%w: no intrinsics for camera %d", ErrCalibrationMissing, p.Camera)
	}

	img := Image{
		Camera:    p.Camera,
		Sequence:  seq,
		Timestamp: ts,
		Width:     p.Width,
		Height:    p.Height,
		Pixels:    make([]byte, p.Width*p.Height),
		Pair:      -1,
	}
	if a.opts.Flip {
		flipInto(img.Pixels, p)
	} else {
		p.CopyTo(img.Pixels)
	}

	if !a.opts.Enabled {
		return img, nil
	}
	img.Calibrated = true
	img.Intrinsics = intr

	h, inv, pair, ok := a.store.Homography(p.Camera)
	if !ok {
		return img, nil
	}
	img.Pair = pair
	img.Homography = &h
	if a.opts.DepthMap {
		img.Rectified = make([]byte, len(img.Pixels))
		Warp(img.Rectified, img.Pixels, img.Width, img.Height, inv)
	}
	return img, nil
}

// flipInto writes p rotated by 180° into dst.
func flipInto(dst []byte, p frame.Plane) {
	w, h := p.Width, p.Height
	for y := 0; y < h; y++ {
		row := p.Row(y)
		out := dst[(h-1-y)*w : (h-y)*w]
		for x, v := range row {
			out[w-1-x] = v
		}
	}
}

// Warp resamples the w×h image src into dst through a perspective
// transform. inv maps destination pixel coordinates back into src; samples
// are bilinear and points falling outside src are written as 0.
func Warp(dst, src []byte, w, h int, inv f64.Mat3) {
	maxX, maxY := float64(w-1), float64(h-1)
	for y := 0; y < h; y++ {
		fy := float64(y)
		// Accumulate the homogeneous row terms incrementally along x.
		nx := inv[1]*fy + inv[2]
		ny := inv[4]*fy + inv[5]
		nw := inv[7]*fy + inv[8]
		out := dst[y*w : (y+1)*w]
		for x := range out {
			fx := float64(x)
			wz := inv[6]*fx + nw
			if wz == 0 {
				out[x] = 0
				continue
			}
			sx := (inv[0]*fx + nx) / wz
			sy := (inv[3]*fx + ny) / wz
			if !(sx >= 0 && sy >= 0 && sx <= maxX && sy <= maxY) {
				out[x] = 0
				continue
			}
			out[x] = bilinear(src, w, h, sx, sy)
		}
	}
}

func bilinear(src []byte, w, h int, sx, sy float64) byte {
	x0, y0 := int(sx), int(sy)
	ax, ay := sx-float64(x0), sy-float64(y0)
	x1, y1 := x0+1, y0+1
	if x1 >= w {
		x1 = w - 1
	}
	if y1 >= h {
		y1 = h - 1
	}
	p00 := float64(src[y0*w+x0])
	p10 := float64(src[y0*w+x1])
	p01 := float64(src[y1*w+x0])
	p11 := float64(src[y1*w+x1])

	top := p00 + (p10-p00)*ax
	bottom := p01 + (p11-p01)*ax
	v := top + (bottom-top)*ay
	return byte(math.Min(255, math.Floor(v+0.5)))
}
