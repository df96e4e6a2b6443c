package app

import (
	"testing"

	"github.com/relabs-tech/uvc_stereo/internal/publish"
)

func TestRenderPreview(t *testing.T) {
	p := publish.ImagePayload{Camera: 2, Sequence: 7, Width: 3, Height: 2, Pixels: []byte{10, 20, 30, 40, 50, 60}}
	img, err := RenderPreview(p, false)
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2+captionHeight {
		t.Fatalf("bounds = %v", b)
	}
	if img.GrayAt(2, 1).Y != 60 || img.GrayAt(0, 0).Y != 10 {
		t.Errorf("pixels not copied: %v %v", img.GrayAt(0, 0), img.GrayAt(2, 1))
	}

	p.Rectified = []byte{1, 1, 1, 1, 1, 1}
	img, err = RenderPreview(p, true)
	if err != nil {
		t.Fatalf("RenderPreview rectified: %v", err)
	}
	if img.GrayAt(0, 0).Y != 1 {
		t.Errorf("rectified image not shown")
	}

	p.Pixels = p.Pixels[:5]
	if _, err := RenderPreview(p, false); err == nil {
		t.Error("short pixel buffer accepted")
	}
}
