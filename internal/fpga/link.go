// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fpga pushes camera parameters to the device firmware over the
// auxiliary serial link. The firmware uses them for on-board rectification.
//
// Every parameter travels as one 22-byte packet:
//
//	0xAA | name (16 bytes, zero padded) | value (float32 little-endian) | xor checksum
package fpga

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"

	serial "github.com/jacobsa/go-serial/serial"
	"golang.org/x/image/math/f64"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

const (
	syncByte   = 0xAA
	nameLen    = 16
	packetSize = 1 + nameLen + 4 + 1
)

// Link writes parameter packets to the device.
type Link struct {
	w   io.Writer
	c   io.Closer
	log *slog.Logger
}

// Open opens the serial port at baud, 8N1.
func Open(port string, baud uint, log *slog.Logger) (*Link, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rw, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	l := NewLink(rw, log)
	l.c = rw
	l.log.Info("fpga: serial link opened", "port", port, "baud", baud)
	return l, nil
}

// NewLink wraps an already open writer.
func NewLink(w io.Writer, log *slog.Logger) *Link {
	if log == nil {
		log = slog.Default()
	}
	return &Link{w: w, log: log.With("component", "fpga")}
}

// Close closes the underlying port, if the Link owns one.
func (l *Link) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}

// SetParam sends one named parameter.
func (l *Link) SetParam(name string, val float32) error {
	if len(name) == 0 || len(name) > nameLen {
		return fmt.Errorf("fpga: parameter name %q must be 1-%d bytes", name, nameLen)
	}
	var pkt [packetSize]byte
	pkt[0] = syncByte
	copy(pkt[1:1+nameLen], name)
	binary.LittleEndian.PutUint32(pkt[1+nameLen:], math.Float32bits(val))
	var sum byte
	for _, b := range pkt[1 : packetSize-1] {
		sum ^= b
	}
	pkt[packetSize-1] = sum

	if _, err := l.w.Write(pkt[:]); err != nil {
		return fmt.Errorf("fpga: write %s: %w", name, err)
	}
	l.log.Debug("fpga: param set", "name", name, "value", val)
	return nil
}

// SendCameraParams sends the intrinsics and rectifying homography of one
// camera.
func (l *Link) SendCameraParams(cam int, in calibration.CameraIntrinsics, h f64.Mat3) error {
	params := []struct {
		suffix string
		val    float64
	}{
		{"F", in.FocalLength},
		{"U0", in.PrincipalPoint[0]},
		{"V0", in.PrincipalPoint[1]},
		{"K1", in.K1},
		{"K2", in.K2},
		{"R1", in.R1},
		{"R2", in.R2},
	}
	for _, p := range params {
		if err := l.SetParam(fmt.Sprintf("CAM%d_%s", cam, p.suffix), float32(p.val)); err != nil {
			return err
		}
	}
	for i, v := range h {
		name := fmt.Sprintf("CAM%d_H%d%d", cam, i/3+1, i%3+1)
		if err := l.SetParam(name, float32(v)); err != nil {
			return err
		}
	}
	return nil
}

// SendCalibration pushes the topology and every calibrated camera's
// parameters. Cameras outside the topology are skipped.
func (l *Link) SendCalibration(store *calibration.Store, topo frame.Topology) error {
	if err := l.SetParam("N_CAMERAS", float32(topo.CameraCount)); err != nil {
		return err
	}
	if err := l.SetParam("CAMERA_CONFIG", float32(topo.Layout)); err != nil {
		return err
	}
	sent := 0
	for _, cam := range store.Cameras() {
		if cam >= topo.CameraCount {
			continue
		}
		in, _ := store.Intrinsics(cam)
		h, _, _, ok := store.Homography(cam)
		if !ok {
			h = calibration.Identity
		}
		if err := l.SendCameraParams(cam, in, h); err != nil {
			return err
		}
		sent++
	}
	l.log.Info("fpga: calibration sent", "cameras", sent)
	return nil
}
