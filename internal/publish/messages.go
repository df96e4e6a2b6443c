// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package publish

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/image/math/f64"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/imu"
	"github.com/relabs-tech/uvc_stereo/internal/router"
)

// EncodingMono8 is the only pixel format the device produces.
const EncodingMono8 = "mono8"

// Topics names the MQTT topics of one producer.
type Topics struct {
	Prefix string
}

func (t Topics) base() string {
	p := strings.TrimRight(t.Prefix, "/")
	if p == "" {
		return "uvc"
	}
	return p
}

func (t Topics) Image(channel int) string { return fmt.Sprintf("%s/cam/%d", t.base(), channel) }
func (t Topics) Stereo(pair int) string   { return fmt.Sprintf("%s/stereo/%d", t.base(), pair) }
func (t Topics) Inertial() string         { return t.base() + "/imu" }
func (t Topics) Combined() string         { return t.base() + "/combined" }

// Wildcard matches every topic under the prefix.
func (t Topics) Wildcard() string { return t.base() + "/#" }

// ImagePayload is the JSON body of an image message. Pixels are
// base64-encoded by encoding/json.
type ImagePayload struct {
	Session    string                        `json:"session"`
	Sequence   uint64                        `json:"seq"`
	Timestamp  time.Time                     `json:"timestamp"`
	Camera     int                           `json:"camera"`
	Width      int                           `json:"width"`
	Height     int                           `json:"height"`
	Encoding   string                        `json:"encoding"`
	Pixels     []byte                        `json:"pixels"`
	Calibrated bool                          `json:"calibrated"`
	Intrinsics *calibration.CameraIntrinsics `json:"intrinsics,omitempty"`
	Pair       *int                          `json:"pair,omitempty"`
	Homography *f64.Mat3                     `json:"homography,omitempty"`
	Rectified  []byte                        `json:"rectified,omitempty"`
}

// StereoPayload is the JSON body of a stereo pair message.
type StereoPayload struct {
	Session  string       `json:"session"`
	Sequence uint64       `json:"seq"`
	Pair     int          `json:"pair"`
	Left     ImagePayload `json:"left"`
	Right    ImagePayload `json:"right"`
}

// InertialPayload is the JSON body of an IMU message.
type InertialPayload struct {
	Session   string    `json:"session"`
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Accel     f64.Vec3  `json:"accel"`     // g
	AccelMS2  f64.Vec3  `json:"accel_ms2"` // m/s²
	Gyro      f64.Vec3  `json:"gyro"`      // rad/s
}

// CombinedPayload bundles a frame's images and IMU sample.
type CombinedPayload struct {
	Session  string          `json:"session"`
	Sequence uint64          `json:"seq"`
	Images   []ImagePayload  `json:"images"`
	Inertial InertialPayload `json:"imu"`
}

// NewImagePayload converts a calibrated image into its wire form.
func NewImagePayload(session string, img calibration.Image) ImagePayload {
	p := ImagePayload{
		Session:    session,
		Sequence:   img.Sequence,
		Timestamp:  img.Timestamp,
		Camera:     img.Camera,
		Width:      img.Width,
		Height:     img.Height,
		Encoding:   EncodingMono8,
		Pixels:     img.Pixels,
		Calibrated: img.Calibrated,
		Homography: img.Homography,
		Rectified:  img.Rectified,
	}
	if img.Calibrated {
		intr := img.Intrinsics
		p.Intrinsics = &intr
	}
	if img.Pair >= 0 {
		pair := img.Pair
		p.Pair = &pair
	}
	return p
}

// NewInertialPayload converts an inertial sample into its wire form.
func NewInertialPayload(session string, s imu.Sample) InertialPayload {
	return InertialPayload{
		Session:   session,
		Sequence:  s.Sequence,
		Timestamp: s.Timestamp,
		Accel:     s.Accel,
		AccelMS2:  s.AccelMS2(),
		Gyro:      s.Gyro,
	}
}

// NewCombinedPayload converts a bundle into its wire form.
func NewCombinedPayload(session string, b router.Bundle) CombinedPayload {
	p := CombinedPayload{
		Session:  session,
		Sequence: b.Sequence,
		Images:   make([]ImagePayload, 0, len(b.Images)),
		Inertial: NewInertialPayload(session, b.Inertial),
	}
	for _, img := range b.Images {
		p.Images = append(p.Images, NewImagePayload(session, img))
	}
	return p
}
