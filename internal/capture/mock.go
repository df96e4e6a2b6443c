// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package capture

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/uvc_stereo/internal/frame"
	"github.com/relabs-tech/uvc_stereo/internal/imu"
)

// MockSource generates frames with a moving gradient per camera and an IMU
// block describing a slow rotation, in the exact layout of the topology.
type MockSource struct {
	topo   frame.Topology
	period time.Duration
	limit  uint64 // 0 = unlimited
	start  time.Time
	buf    []byte
	split  frame.Split
}

// NewMockSource returns a source producing one frame per period. A zero
// period produces frames as fast as the consumer accepts them. limit stops
// the stream after that many frames; 0 means run until cancelled.
func NewMockSource(topo frame.Topology, period time.Duration, limit uint64) *MockSource {
	return &MockSource{topo: topo, period: period, limit: limit}
}

func (m *MockSource) Open(ctx context.Context) error {
	m.buf = make([]byte, m.topo.FrameSize())
	split, err := frame.Demux(m.buf, m.topo)
	if err != nil {
		return fmt.Errorf("mock source: %w", err)
	}
	m.split = split
	m.start = time.Now()
	return nil
}

func (m *MockSource) Stream(ctx context.Context, fn func(Frame)) error {
	if m.buf == nil {
		return fmt.Errorf("mock source: not open")
	}
	var tick <-chan time.Time
	if m.period > 0 {
		ticker := time.NewTicker(m.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for seq := uint64(0); m.limit == 0 || seq < m.limit; seq++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		now := time.Now()
		m.fill(seq, now.Sub(m.start).Seconds())
		fn(Frame{Sequence: seq, Timestamp: now, Data: m.buf})
	}
	return nil
}

func (m *MockSource) Close() error {
	m.buf = nil
	return nil
}

// fill renders frame seq into the shared buffer through the demux views, so
// the pattern lands wherever the layout puts each camera.
func (m *MockSource) fill(seq uint64, elapsed float64) {
	for _, p := range m.split.Planes {
		for y := 0; y < p.Height; y++ {
			row := p.Row(y)
			for x := range row {
				row[x] = byte(x + y + int(seq) + p.Camera*32)
			}
		}
	}

	// Gravity tilting around X at 0.5 rad/s, plus the matching gyro rate.
	roll := 0.5 * elapsed
	imu.Encode(m.split.Inertial, imu.Raw{
		Ax: 0,
		Ay: int16(math.Sin(roll) * imu.AccelScale),
		Az: int16(math.Cos(roll) * imu.AccelScale * 0.999),
		Gx: int16(math.Round(0.5 / imu.DegToRad * imu.GyroScale)),
		Gy: 0,
		Gz: 0,
	})
}
