// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package publish

import (
	"sync"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/imu"
	"github.com/relabs-tech/uvc_stereo/internal/router"
)

// RecordedStereo is one recorded stereo publication.
type RecordedStereo struct {
	Pair        int
	Left, Right calibration.Image
}

// RecordedImage is one recorded image publication.
type RecordedImage struct {
	Channel int
	Image   calibration.Image
}

// Memory is a Publisher that keeps every message in memory. It backs dry
// runs and tests.
type Memory struct {
	mu       sync.Mutex
	images   []RecordedImage
	stereo   []RecordedStereo
	inertial []imu.Sample
	combined []router.Bundle

	// Fail, when set, is returned by every publish call.
	Fail error
}

func (m *Memory) PublishImage(channel int, img calibration.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.images = append(m.images, RecordedImage{Channel: channel, Image: img})
	return nil
}

func (m *Memory) PublishStereo(pair int, left, right calibration.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.stereo = append(m.stereo, RecordedStereo{Pair: pair, Left: left, Right: right})
	return nil
}

func (m *Memory) PublishInertial(s imu.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.inertial = append(m.inertial, s)
	return nil
}

func (m *Memory) PublishCombined(b router.Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.combined = append(m.combined, b)
	return nil
}

// Images returns the recorded image publications.
func (m *Memory) Images() []RecordedImage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedImage(nil), m.images...)
}

// Stereo returns the recorded stereo publications.
func (m *Memory) Stereo() []RecordedStereo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedStereo(nil), m.stereo...)
}

// Inertial returns the recorded inertial samples.
func (m *Memory) Inertial() []imu.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]imu.Sample(nil), m.inertial...)
}

// Combined returns the recorded bundles.
func (m *Memory) Combined() []router.Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]router.Bundle(nil), m.combined...)
}

// Reset drops everything recorded so far.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images, m.stereo, m.inertial, m.combined = nil, nil, nil, nil
}
