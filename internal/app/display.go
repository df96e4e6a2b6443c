package app

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/uvc_stereo/internal/publish"
)

// captionHeight is the band under the image that carries the label.
const captionHeight = 16

// RenderPreview draws a camera image with a caption band below it. With
// rectified set and a rectified image available, that image is shown
// instead of the raw one.
func RenderPreview(p publish.ImagePayload, rectified bool) (*image.Gray, error) {
	pix := p.Pixels
	label := fmt.Sprintf("CAM%d #%d", p.Camera, p.Sequence)
	if rectified && len(p.Rectified) > 0 {
		pix = p.Rectified
		label += " RECT"
	}
	if p.Width <= 0 || p.Height <= 0 || len(pix) != p.Width*p.Height {
		return nil, fmt.Errorf("camera %d: %d bytes for %dx%d image", p.Camera, len(pix), p.Width, p.Height)
	}

	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height+captionHeight))
	for y := 0; y < p.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+p.Width], pix[y*p.Width:(y+1)*p.Width])
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.Gray{Y: 0xff}},
		Face: basicfont.Face7x13,
	}
	drawer.Dot = fixed.P(2, p.Height+captionHeight-3)
	drawer.DrawBytes([]byte(label))
	return img, nil
}
