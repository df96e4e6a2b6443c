// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import "fmt"

// Range is a half-open byte range [Start, End) within a raw buffer.
type Range struct {
	Start int
	End   int
}

// Plane is a strided, zero-copy view of one camera's image inside a raw
// capture buffer. It is only valid while the buffer it points into is.
type Plane struct {
	Camera int
	Width  int
	Height int
	Stride int
	Offset int

	buf []byte
}

// Row returns row y of the plane without copying.
func (p Plane) Row(y int) []byte {
	start := p.Offset + y*p.Stride
	return p.buf[start : start+p.Width : start+p.Width]
}

// Ranges lists the byte ranges this plane occupies in the raw buffer,
// merging rows that happen to be contiguous.
func (p Plane) Ranges() []Range {
	if p.Stride == p.Width {
		return []Range{{Start: p.Offset, End: p.Offset + p.Width*p.Height}}
	}
	out := make([]Range, 0, p.Height)
	for y := 0; y < p.Height; y++ {
		start := p.Offset + y*p.Stride
		out = append(out, Range{Start: start, End: start + p.Width})
	}
	return out
}

// CopyTo copies the plane into dst row by row and returns the number of
// bytes written. dst must hold at least Width*Height bytes.
func (p Plane) CopyTo(dst []byte) int {
	n := 0
	for y := 0; y < p.Height; y++ {
		n += copy(dst[y*p.Width:(y+1)*p.Width], p.Row(y))
	}
	return n
}

// Split is the result of demultiplexing one raw capture buffer.
type Split struct {
	Inertial []byte
	Planes   []Plane
}

// Demux partitions raw into the inertial block and one plane per camera.
// Nothing is copied; the returned views alias raw.
func Demux(raw []byte, topo Topology) (Split, error) {
	if err := topo.Validate(); err != nil {
		return Split{}, err
	}
	want := topo.FrameSize()
	if len(raw) != want {
		return Split{}, fmt.Errorf("%w: got %d bytes, want %d for %d cameras %dx%d",
			ErrFrameSizeMismatch, len(raw), want, topo.CameraCount, topo.Width, topo.Height)
	}

	split := Split{
		Inertial: raw[:InertialBlockSize:InertialBlockSize],
		Planes:   make([]Plane, topo.CameraCount),
	}
	for cam := 0; cam < topo.CameraCount; cam++ {
		offset, stride := planeGeometry(topo, cam)
		split.Planes[cam] = Plane{
			Camera: cam,
			Width:  topo.Width,
			Height: topo.Height,
			Stride: stride,
			Offset: InertialBlockSize + offset,
			buf:    raw,
		}
	}
	return split, nil
}

// planeGeometry returns the offset (relative to the image region) of the
// first row of camera cam and the distance between its rows.
func planeGeometry(topo Topology, cam int) (offset, stride int) {
	w, plane := topo.Width, topo.PlaneSize()
	switch topo.Layout {
	case LayoutRowInterleaved:
		return cam * w, topo.CameraCount * w
	case LayoutPairInterleaved:
		pair, side := cam/2, cam%2
		return pair*2*plane + side*w, 2 * w
	default:
		return cam * plane, w
	}
}
