// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package driver runs the stereo camera: it initializes the device once,
// then drives demux, inertial conversion, calibration and routing for every
// frame on the capture goroutine.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/capture"
	"github.com/relabs-tech/uvc_stereo/internal/config"
	"github.com/relabs-tech/uvc_stereo/internal/fpga"
	"github.com/relabs-tech/uvc_stereo/internal/frame"
	"github.com/relabs-tech/uvc_stereo/internal/imu"
	"github.com/relabs-tech/uvc_stereo/internal/router"
)

var (
	// ErrDeviceInit is returned when the device cannot be brought up.
	ErrDeviceInit = errors.New("device initialization failed")
	// ErrNotInitialized is returned by StartDevice before InitDevice.
	ErrNotInitialized = errors.New("device not initialized")
)

// Options is the immutable session configuration of a Driver.
type Options struct {
	Topology frame.Topology
	Pairs    []frame.Pair

	Flip               bool
	DepthMap           bool
	Combined           bool
	Individual         bool
	CalibrationEnabled bool
	CalibrationFile    string

	SerialPort     string
	SerialBaudRate uint
}

// OptionsFromConfig copies the fields the driver needs out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Topology:           cfg.Topology(),
		Pairs:              append([]frame.Pair(nil), cfg.Pairs()...),
		Flip:               cfg.Flip,
		DepthMap:           cfg.DepthMap,
		Combined:           cfg.UseCombinedMessage,
		Individual:         cfg.PublishIndividual,
		CalibrationEnabled: cfg.CalibrationEnabled,
		CalibrationFile:    cfg.CalibrationFile,
		SerialPort:         cfg.SerialPort,
		SerialBaudRate:     uint(cfg.SerialBaudRate),
	}
}

// Stats counts what happened to frames since the driver was created.
type Stats struct {
	Frames        uint64
	Dropped       uint64 // frames that failed to demux
	CameraSkips   uint64 // per-camera images skipped for missing calibration
	Images        uint64
	Stereo        uint64
	Combined      uint64
	PublishErrors uint64
}

// paramLink is the auxiliary serial link to the firmware.
type paramLink interface {
	SendCalibration(store *calibration.Store, topo frame.Topology) error
	Close() error
}

// Driver owns one streaming session.
type Driver struct {
	opts Options
	src  capture.Source
	pub  router.Publisher
	log  *slog.Logger

	openLink func(port string, baud uint) (paramLink, error)

	store      *calibration.Store
	applicator *calibration.Applicator
	router     *router.Router

	mu          sync.Mutex
	initialized bool
	cancel      context.CancelFunc
	done        chan struct{} // closed when StartDevice returns

	frames, dropped, skips                atomic.Uint64
	images, stereo, combined, publishErrs atomic.Uint64
}

// New returns a Driver. Nothing touches the device until InitDevice.
func New(opts Options, src capture.Source, pub router.Publisher, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	d := &Driver{
		opts: opts,
		src:  src,
		pub:  pub,
		log:  log.With("component", "driver"),
	}
	d.openLink = func(port string, baud uint) (paramLink, error) {
		return fpga.Open(port, baud, log)
	}
	return d
}

// InitDevice loads calibration, pushes it to the firmware, builds the
// pipeline and opens the capture stream. Every error it returns is fatal
// for the session.
func (d *Driver) InitDevice(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}

	topo := d.opts.Topology
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceInit, err)
	}

	if err := d.loadCalibration(); err != nil {
		return err
	}

	if d.opts.CalibrationEnabled && d.store != nil && d.opts.SerialPort != "" {
		link, err := d.openLink(d.opts.SerialPort, d.opts.SerialBaudRate)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDeviceInit, err)
		}
		err = link.SendCalibration(d.store, topo)
		link.Close()
		if err != nil {
			return fmt.Errorf("%w: send calibration: %w", ErrDeviceInit, err)
		}
	}

	r, err := router.New(topo, d.opts.Pairs, router.Mode{
		Combined:   d.opts.Combined,
		Individual: d.opts.Individual,
	}, d.pub, d.log)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceInit, err)
	}
	d.router = r
	d.applicator = calibration.NewApplicator(d.store, calibration.ApplyOptions{
		CameraCount: topo.CameraCount,
		Enabled:     d.opts.CalibrationEnabled && d.store != nil,
		Flip:        d.opts.Flip,
		DepthMap:    d.opts.DepthMap,
	})

	if err := d.src.Open(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceInit, err)
	}

	d.initialized = true
	d.log.Info("driver: device initialized",
		"cameras", topo.CameraCount,
		"layout", topo.Layout.String(),
		"frame_bytes", topo.FrameSize(),
		"image_channels", r.ImageChannels(),
		"stereo_channels", r.StereoChannels(),
		"calibrated", d.opts.CalibrationEnabled && d.store != nil,
		"flip", d.opts.Flip,
		"depth_map", d.opts.DepthMap,
		"combined", d.opts.Combined,
	)
	return nil
}

func (d *Driver) loadCalibration() error {
	if d.opts.CalibrationFile == "" {
		if d.opts.CalibrationEnabled {
			return fmt.Errorf("%w: no calibration file configured", calibration.ErrCalibrationLoad)
		}
		return nil
	}
	store, err := calibration.LoadFile(d.opts.CalibrationFile, d.opts.Pairs)
	if err != nil {
		if d.opts.CalibrationEnabled {
			return err
		}
		d.log.Warn("driver: calibration unavailable, streaming uncalibrated", "err", err)
		return nil
	}
	d.store = store
	d.log.Info("driver: calibration loaded", "file", d.opts.CalibrationFile, "cameras", len(store.Cameras()), "pairs", len(store.Pairs()))
	return nil
}

// StartDevice streams until ctx is cancelled, Stop is called or the source
// runs dry. Frames are processed synchronously on the source's goroutine.
func (d *Driver) StartDevice(ctx context.Context) error {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return ErrNotInitialized
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()
	defer close(done)
	defer cancel()

	d.log.Info("driver: streaming started")
	err := d.src.Stream(ctx, d.HandleFrame)
	s := d.Stats()
	d.log.Info("driver: streaming stopped",
		"frames", s.Frames,
		"dropped", s.Dropped,
		"camera_skips", s.CameraSkips,
		"publish_errors", s.PublishErrors,
	)
	if err != nil {
		return fmt.Errorf("capture stream: %w", err)
	}
	return nil
}

// Stop ends streaming, waits for the frame in flight and releases the
// capture source. It must not be called from a frame callback.
func (d *Driver) Stop() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil
	}
	d.initialized = false
	return d.src.Close()
}

// HandleFrame runs the whole pipeline for one raw frame. Per-frame failures
// are logged and counted; they never stop the stream.
func (d *Driver) HandleFrame(f capture.Frame) {
	d.frames.Add(1)

	split, err := frame.Demux(f.Data, d.opts.Topology)
	if err != nil {
		d.dropped.Add(1)
		d.log.Warn("driver: frame dropped", "seq", f.Sequence, "err", err)
		return
	}

	sample := imu.Convert(split.Inertial, f.Timestamp, f.Sequence)

	images := make([]calibration.Image, 0, len(split.Planes))
	for _, p := range split.Planes {
		img, err := d.applicator.Apply(p, f.Sequence, f.Timestamp)
		if err != nil {
			d.skips.Add(1)
			d.log.Warn("driver: camera skipped", "seq", f.Sequence, "camera", p.Camera, "err", err)
			continue
		}
		images = append(images, img)
	}

	res := d.router.Route(images, sample)
	d.images.Add(uint64(res.Images))
	d.stereo.Add(uint64(res.Stereo))
	if res.Combined {
		d.combined.Add(1)
	}
	d.publishErrs.Add(uint64(res.PublishErrors))
}

// Stats returns a snapshot of the frame counters.
func (d *Driver) Stats() Stats {
	return Stats{
		Frames:        d.frames.Load(),
		Dropped:       d.dropped.Load(),
		CameraSkips:   d.skips.Load(),
		Images:        d.images.Load(),
		Stereo:        d.stereo.Load(),
		Combined:      d.combined.Load(),
		PublishErrors: d.publishErrs.Load(),
	}
}

// Calibration returns the loaded calibration, or nil when running
// uncalibrated.
func (d *Driver) Calibration() *calibration.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store
}
