// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package router fans calibrated images and inertial samples out to the
// publish boundary.
//
// Channels are indexed: image channel i carries camera i, stereo channel k
// carries the k-th configured pair, and there is a single inertial channel.
// In combined mode every frame collapses into one Bundle instead.
package router

import (
	"fmt"
	"log/slog"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/frame"
	"github.com/relabs-tech/uvc_stereo/internal/imu"
)

// Bundle is the combined per-frame message: every image that survived
// calibration plus the inertial sample.
type Bundle struct {
	Sequence uint64
	Images   []calibration.Image
	Inertial imu.Sample
}

// Publisher is the publish boundary. Implementations must not retain the
// images past the call unless they own them; the router never reuses them.
type Publisher interface {
	PublishImage(channel int, img calibration.Image) error
	PublishStereo(pair int, left, right calibration.Image) error
	PublishInertial(s imu.Sample) error
	PublishCombined(b Bundle) error
}

// Mode selects how a frame is dispatched.
type Mode struct {
	Combined   bool // one Bundle per frame
	Individual bool // one message per image channel
}

// Result reports what Route dispatched for one frame.
type Result struct {
	Images        int
	Stereo        int
	Inertial      bool
	Combined      bool
	PublishErrors int
}

// Router maps images onto channels. It holds no per-frame state.
type Router struct {
	pub   Publisher
	mode  Mode
	pairs []frame.Pair
	// imageChannel[cam] is true when camera cam has an active image channel.
	imageChannel []bool
	log          *slog.Logger
}

// New builds a Router for topo. pairs must already be validated against the
// topology; their order fixes the stereo channel numbering.
func New(topo frame.Topology, pairs []frame.Pair, mode Mode, pub Publisher, log *slog.Logger) (*Router, error) {
	if mode.Combined && mode.Individual {
		return nil, fmt.Errorf("router: combined and individual publishing are mutually exclusive")
	}
	if err := frame.ValidatePairs(pairs, topo); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	channels := make([]bool, topo.CameraCount)
	for i := range channels {
		channels[i] = true
	}
	return &Router{
		pub:          pub,
		mode:         mode,
		pairs:        append([]frame.Pair(nil), pairs...),
		imageChannel: channels,
		log:          log.With("component", "router"),
	}, nil
}

// ImageChannels is the number of active image channels.
func (r *Router) ImageChannels() int { return len(r.imageChannel) }

// StereoChannels is the number of active stereo channels.
func (r *Router) StereoChannels() int { return len(r.pairs) }

// Route dispatches one frame. images holds only the cameras that produced a
// valid image this frame, in any order.
func (r *Router) Route(images []calibration.Image, inertial imu.Sample) Result {
	var res Result

	if r.mode.Combined {
		b := Bundle{Sequence: inertial.Sequence, Inertial: inertial}
		for _, img := range images {
			if r.active(img.Camera) {
				b.Images = append(b.Images, img)
			}
		}
		if err := r.pub.PublishCombined(b); err != nil {
			r.publishFailed("combined", -1, err, &res)
		} else {
			res.Combined = true
		}
		return res
	}

	var byCamera [frame.MaxCameras]*calibration.Image
	for i := range images {
		img := &images[i]
		if !r.active(img.Camera) {
			r.log.Debug("router: image for inactive channel dropped", "camera", img.Camera)
			continue
		}
		byCamera[img.Camera] = img
		if !r.mode.Individual {
			continue
		}
		if err := r.pub.PublishImage(img.Camera, *img); err != nil {
			r.publishFailed("image", img.Camera, err, &res)
			continue
		}
		res.Images++
	}

	for k, p := range r.pairs {
		left, right := byCamera[p.Left], byCamera[p.Right]
		if left == nil || right == nil {
			continue
		}
		if err := r.pub.PublishStereo(k, *left, *right); err != nil {
			r.publishFailed("stereo", k, err, &res)
			continue
		}
		res.Stereo++
	}

	if err := r.pub.PublishInertial(inertial); err != nil {
		r.publishFailed("inertial", 0, err, &res)
	} else {
		res.Inertial = true
	}
	return res
}

func (r *Router) active(cam int) bool {
	return cam >= 0 && cam < len(r.imageChannel) && r.imageChannel[cam]
}

func (r *Router) publishFailed(kind string, channel int, err error, res *Result) {
	res.PublishErrors++
	r.log.Warn("router: publish failed", "kind", kind, "channel", channel, "err", err)
}
