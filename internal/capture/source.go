// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package capture is the boundary to whatever produces raw frames: the
// UVC stack on real hardware, or the synthetic and replay sources here.
package capture

import (
	"context"
	"time"
)

// Frame is one raw capture buffer. Data is only valid for the duration of
// the callback it is passed to; callers that keep it must copy it.
type Frame struct {
	Sequence  uint64
	Timestamp time.Time
	Data      []byte
}

// Source yields raw frames.
type Source interface {
	// Open negotiates the stream. It is the only step that may fail
	// because of the device.
	Open(ctx context.Context) error
	// Stream invokes fn for every frame, on a single goroutine, until ctx
	// is cancelled or the source runs out. It returns nil on either.
	Stream(ctx context.Context, fn func(Frame)) error
	Close() error
}
