package calibration

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/math/f64"

	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

const testYAML = `
cameras:
  - index: 0
    f: 455.5
    p: [376.0, 240.0]
    k1: -0.28
    k2: 0.07
    r1: 0.001
    r2: -0.002
  - index: 1
    f: 456.0
    p: [370.5, 238.25]
    h: [1, 0, 1, 0, 1, 0, 0, 0, 1]
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calib.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write calibration: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	store, err := LoadFile(writeFile(t, testYAML), []frame.Pair{{Left: 0, Right: 1}})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	in, ok := store.Intrinsics(0)
	if !ok {
		t.Fatal("camera 0 missing")
	}
	want := CameraIntrinsics{FocalLength: 455.5, PrincipalPoint: f64.Vec2{376, 240}, K1: -0.28, K2: 0.07, R1: 0.001, R2: -0.002}
	if in != want {
		t.Errorf("camera 0 = %+v, want %+v", in, want)
	}
	if _, ok := store.Intrinsics(2); ok {
		t.Error("camera 2 should be missing")
	}
	if got := store.Cameras(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Cameras() = %v", got)
	}

	pairs := store.Pairs()
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs", len(pairs))
	}
	if pairs[0].HLeft != Identity {
		t.Errorf("left homography = %v, want identity", pairs[0].HLeft)
	}
	if pairs[0].HRight[2] != 1 {
		t.Errorf("right homography = %v", pairs[0].HRight)
	}

	_, inv, pair, ok := store.Homography(1)
	if !ok || pair != 0 {
		t.Fatalf("Homography(1) = pair %d ok %v", pair, ok)
	}
	if inv[2] != -1 {
		t.Errorf("inverse translation = %v, want -1", inv[2])
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "cameras: []\n"},
		{"not yaml", "cameras: [\n"},
		{"unknown field", "cameras:\n  - index: 0\n    f: 1\n    p: [0, 0]\n    focal: 3\n"},
		{"no index", "cameras:\n  - f: 1\n    p: [0, 0]\n"},
		{"index range", "cameras:\n  - index: 10\n    f: 1\n    p: [0, 0]\n"},
		{"duplicate", "cameras:\n  - index: 0\n    f: 1\n    p: [0, 0]\n  - index: 0\n    f: 1\n    p: [0, 0]\n"},
		{"bad focal", "cameras:\n  - index: 0\n    f: 0\n    p: [0, 0]\n"},
		{"bad principal point", "cameras:\n  - index: 0\n    f: 1\n    p: [0]\n"},
		{"bad homography", "cameras:\n  - index: 0\n    f: 1\n    p: [0, 0]\n    h: [1, 0, 0]\n"},
		{"singular homography", "cameras:\n  - index: 0\n    f: 1\n    p: [0, 0]\n    h: [0, 0, 0, 0, 0, 0, 0, 0, 0]\n  - index: 1\n    f: 1\n    p: [0, 0]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.content), []frame.Pair{{Left: 0, Right: 1}})
			if !errors.Is(err, ErrCalibrationLoad) {
				t.Fatalf("got %v, want ErrCalibrationLoad", err)
			}
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if !errors.Is(err, ErrCalibrationLoad) {
		t.Fatalf("missing file: got %v, want ErrCalibrationLoad", err)
	}
}

func TestInvert(t *testing.T) {
	m := f64.Mat3{2, 0.5, 3, 0.1, 1.5, -2, 0.001, 0.002, 1}
	inv, ok := Invert(m)
	if !ok {
		t.Fatal("matrix reported singular")
	}
	for _, pt := range [][2]float64{{0, 0}, {10, 5}, {-3, 7.5}} {
		x, y, ok := Project(m, pt[0], pt[1])
		if !ok {
			t.Fatalf("Project(%v) at infinity", pt)
		}
		bx, by, _ := Project(inv, x, y)
		if math.Abs(bx-pt[0]) > 1e-9 || math.Abs(by-pt[1]) > 1e-9 {
			t.Errorf("round trip of %v = (%v, %v)", pt, bx, by)
		}
	}
	if _, ok := Invert(f64.Mat3{1, 2, 3, 2, 4, 6, 0, 0, 1}); ok {
		t.Error("singular matrix inverted")
	}
}

func testPlanes(t *testing.T, topo frame.Topology) (frame.Split, []byte) {
	t.Helper()
	raw := make([]byte, topo.FrameSize())
	for i := frame.InertialBlockSize; i < len(raw); i++ {
		raw[i] = byte(i * 7)
	}
	split, err := frame.Demux(raw, topo)
	if err != nil {
		t.Fatalf("Demux: %v", err)
	}
	return split, raw
}

func TestApplyCalibrationMissing(t *testing.T) {
	topo := frame.Topology{CameraCount: 3, Layout: frame.LayoutPlanar, Width: 4, Height: 3}
	store, err := Parse([]byte(testYAML), []frame.Pair{{Left: 0, Right: 1}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a := NewApplicator(store, ApplyOptions{CameraCount: topo.CameraCount, Enabled: true})
	split, _ := testPlanes(t, topo)

	for _, p := range split.Planes[:2] {
		img, err := a.Apply(p, 1, time.Time{})
		if err != nil {
			t.Fatalf("camera %d: %v", p.Camera, err)
		}
		if !img.Calibrated || img.Pair != 0 || img.Homography == nil {
			t.Errorf("camera %d: calibrated=%v pair=%d", p.Camera, img.Calibrated, img.Pair)
		}
	}
	if _, err := a.Apply(split.Planes[2], 1, time.Time{}); !errors.Is(err, ErrCalibrationMissing) {
		t.Errorf("camera 2: got %v, want ErrCalibrationMissing", err)
	}

	outOfRange := split.Planes[0]
	outOfRange.Camera = topo.CameraCount
	if _, err := a.Apply(outOfRange, 1, time.Time{}); !errors.Is(err, ErrCalibrationMissing) {
		t.Errorf("camera %d: got %v, want ErrCalibrationMissing", outOfRange.Camera, err)
	}
}

func TestApplyUncalibrated(t *testing.T) {
	topo := frame.Topology{CameraCount: 2, Layout: frame.LayoutRowInterleaved, Width: 4, Height: 3}
	a := NewApplicator(nil, ApplyOptions{CameraCount: 2, DepthMap: true})
	split, _ := testPlanes(t, topo)

	img, err := a.Apply(split.Planes[1], 9, time.Time{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if img.Calibrated || img.Rectified != nil || img.Pair != -1 {
		t.Errorf("uncalibrated image carries calibration: %+v", img)
	}
	want := make([]byte, 12)
	split.Planes[1].CopyTo(want)
	if !bytes.Equal(img.Pixels, want) {
		t.Errorf("pixels = %v, want %v", img.Pixels, want)
	}
}

func TestApplyCopiesPixels(t *testing.T) {
	topo := frame.Topology{CameraCount: 1, Width: 4, Height: 2}
	a := NewApplicator(nil, ApplyOptions{CameraCount: 1})
	split, raw := testPlanes(t, topo)

	img, err := a.Apply(split.Planes[0], 0, time.Time{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	before := img.Pixels[0]
	raw[frame.InertialBlockSize] ^= 0xFF
	if img.Pixels[0] != before {
		t.Fatal("image pixels alias the capture buffer")
	}
}

func TestApplyFlip(t *testing.T) {
	topo := frame.Topology{CameraCount: 1, Width: 3, Height: 2}
	raw := make([]byte, topo.FrameSize())
	copy(raw[frame.InertialBlockSize:], []byte{1, 2, 3, 4, 5, 6})
	split, err := frame.Demux(raw, topo)
	if err != nil {
		t.Fatalf("Demux: %v", err)
	}

	a := NewApplicator(nil, ApplyOptions{CameraCount: 1, Flip: true})
	img, err := a.Apply(split.Planes[0], 0, time.Time{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := []byte{6, 5, 4, 3, 2, 1}; !bytes.Equal(img.Pixels, want) {
		t.Fatalf("flipped = %v, want %v", img.Pixels, want)
	}
}

func TestWarpIdentityAndTranslation(t *testing.T) {
	const w, h = 5, 4
	src := make([]byte, w*h)
	for i := range src {
		src[i] = byte(10 + i)
	}

	dst := make([]byte, w*h)
	Warp(dst, src, w, h, Identity)
	if !bytes.Equal(dst, src) {
		t.Fatalf("identity warp changed pixels: %v", dst)
	}

	shift := f64.Mat3{1, 0, 1, 0, 1, 0, 0, 0, 1}
	inv, _ := Invert(shift)
	Warp(dst, src, w, h, inv)
	for y := 0; y < h; y++ {
		if dst[y*w] != 0 {
			t.Errorf("row %d: column 0 = %d, want 0 (outside source)", y, dst[y*w])
		}
		for x := 1; x < w; x++ {
			if got, want := dst[y*w+x], src[y*w+x-1]; got != want {
				t.Errorf("(%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestWarpBilinearHalfPixel(t *testing.T) {
	src := []byte{0, 100, 0, 100}
	dst := make([]byte, 4)
	// Sample half a pixel to the right of every destination pixel.
	Warp(dst, src, 2, 2, f64.Mat3{1, 0, 0.5, 0, 1, 0, 0, 0, 1})
	if dst[0] != 50 || dst[2] != 50 {
		t.Fatalf("half-pixel samples = %v, want 50 in column 0", dst)
	}
}

func TestApplyFlipDepthMapDeterministic(t *testing.T) {
	topo := frame.Topology{CameraCount: 2, Layout: frame.LayoutPairInterleaved, Width: 16, Height: 12}
	calib := `
cameras:
  - index: 0
    f: 300
    p: [8, 6]
    h: [1.02, 0.01, -0.4, -0.015, 0.98, 0.3, 0.0004, -0.0002, 1]
  - index: 1
    f: 300
    p: [8, 6]
    h: [0.97, -0.02, 0.6, 0.01, 1.01, -0.2, -0.0003, 0.0001, 1]
`
	store, err := Parse([]byte(calib), frame.DefaultPairs(2))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts := ApplyOptions{CameraCount: 2, Enabled: true, Flip: true, DepthMap: true}

	run := func() []Image {
		split, _ := testPlanes(t, topo)
		a := NewApplicator(store, opts)
		var out []Image
		for _, p := range split.Planes {
			img, err := a.Apply(p, 3, time.Time{})
			if err != nil {
				t.Fatalf("Apply camera %d: %v", p.Camera, err)
			}
			out = append(out, img)
		}
		return out
	}

	first, second := run(), run()
	for i := range first {
		if first[i].Rectified == nil {
			t.Fatalf("camera %d: no rectified view in depth-map mode", i)
		}
		if !bytes.Equal(first[i].Pixels, second[i].Pixels) || !bytes.Equal(first[i].Rectified, second[i].Rectified) {
			t.Fatalf("camera %d: output differs between runs", i)
		}
	}
}
