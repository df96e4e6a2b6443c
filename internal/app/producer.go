// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/relabs-tech/uvc_stereo/internal/capture"
	"github.com/relabs-tech/uvc_stereo/internal/config"
	"github.com/relabs-tech/uvc_stereo/internal/driver"
	"github.com/relabs-tech/uvc_stereo/internal/publish"
)

// NewSource builds the capture source selected by CAPTURE_SOURCE.
func NewSource(cfg *config.Config) (capture.Source, error) {
	switch cfg.CaptureSource {
	case config.SourceMock:
		return capture.NewMockSource(cfg.Topology(), cfg.FramePeriod(), 0), nil
	case config.SourceFile:
		return capture.NewFileSource(cfg.CaptureFile, cfg.FramePeriod(), cfg.CaptureLoop), nil
	default:
		return nil, fmt.Errorf("%w: unknown capture source %q", config.ErrInvalidConfig, cfg.CaptureSource)
	}
}

// acquireLock takes the single-producer lock for the device.
func acquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another producer holds %s", path)
	}
	return lock, nil
}

// RunStereoProducer streams the device to MQTT until ctx is cancelled.
func RunStereoProducer(ctx context.Context, cfg *config.Config) error {
	lock, err := acquireLock(cfg.LockFile)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	session := uuid.NewString()
	logger := slog.Default().With("session", session)
	logger.Info("producer: starting uvc stereo producer",
		"broker", cfg.MQTTBroker,
		"topic_prefix", cfg.TopicPrefix,
		"source", cfg.CaptureSource,
		"frame_rate", cfg.FrameRate.String(),
	)

	client, err := publish.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Info("producer: connected to MQTT broker")

	pub := publish.NewMQTTPublisher(client, publish.Topics{Prefix: cfg.TopicPrefix}, session, cfg.PublishWait)

	src, err := NewSource(cfg)
	if err != nil {
		return err
	}
	d := driver.New(driver.OptionsFromConfig(cfg), src, pub, logger)
	if err := d.InitDevice(ctx); err != nil {
		return err
	}
	defer d.Stop()

	return d.StartDevice(ctx)
}

// RunRecord captures frames from the configured source into a raw recording
// that CAPTURE_SOURCE=file can replay. frames == 0 records until ctx is
// cancelled. It returns the number of frames written.
func RunRecord(ctx context.Context, cfg *config.Config, path string, frames uint64) (uint64, error) {
	src, err := NewSource(cfg)
	if err != nil {
		return 0, err
	}
	if err := src.Open(ctx); err != nil {
		return 0, fmt.Errorf("open capture source: %w", err)
	}
	defer src.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create recording: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	rec := capture.NewRecorder(w)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var written uint64
	var writeErr error
	err = src.Stream(ctx, func(fr capture.Frame) {
		if writeErr != nil {
			return
		}
		if writeErr = rec.WriteFrame(fr.Data); writeErr != nil {
			cancel()
			return
		}
		written++
		if frames > 0 && written >= frames {
			cancel()
		}
	})
	if writeErr != nil {
		return written, writeErr
	}
	if err != nil {
		return written, err
	}
	if err := w.Flush(); err != nil {
		return written, fmt.Errorf("flush recording: %w", err)
	}
	if err := f.Close(); err != nil {
		return written, fmt.Errorf("close recording: %w", err)
	}
	slog.Info("record: recording written", "path", path, "frames", written)
	return written, nil
}
