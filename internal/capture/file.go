// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// recordMagic opens every raw recording. Each frame follows as a big-endian
// uint32 length and the frame bytes, so malformed frames replay as-is.
const recordMagic = "UVCRAW01"

// maxRecordFrame bounds a single recorded frame (10 cameras of 1280x1024).
const maxRecordFrame = 16 << 20

// ErrBadRecording is returned for files that are not raw recordings.
var ErrBadRecording = errors.New("not a raw frame recording")

// FileSource replays frames written by a Recorder.
type FileSource struct {
	path   string
	period time.Duration
	loop   bool

	f *os.File
	r *bufio.Reader
}

// NewFileSource replays path at one frame per period (0 = as fast as
// possible), starting over at EOF when loop is set.
func NewFileSource(path string, period time.Duration, loop bool) *FileSource {
	return &FileSource{path: path, period: period, loop: loop}
}

func (s *FileSource) Open(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	s.f = f
	s.r = bufio.NewReader(f)
	if err := s.readHeader(); err != nil {
		f.Close()
		s.f = nil
		return err
	}
	return nil
}

func (s *FileSource) readHeader() error {
	magic := make([]byte, len(recordMagic))
	if _, err := io.ReadFull(s.r, magic); err != nil || string(magic) != recordMagic {
		return fmt.Errorf("%s: %w", s.path, ErrBadRecording)
	}
	return nil
}

func (s *FileSource) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.r.Reset(s.f)
	return s.readHeader()
}

func (s *FileSource) Stream(ctx context.Context, fn func(Frame)) error {
	if s.f == nil {
		return fmt.Errorf("file source: not open")
	}
	var tick <-chan time.Time
	if s.period > 0 {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		seq uint64
		buf []byte
		hdr [4]byte
	)
	for {
		if _, err := io.ReadFull(s.r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) && s.loop && seq > 0 {
				if err := s.rewind(); err != nil {
					return fmt.Errorf("rewind %s: %w", s.path, err)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > maxRecordFrame {
			return fmt.Errorf("%s: frame %d claims %d bytes: %w", s.path, seq, n, ErrBadRecording)
		}
		if cap(buf) < int(n) {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if _, err := io.ReadFull(s.r, buf); err != nil {
			return fmt.Errorf("read %s frame %d: %w", s.path, seq, err)
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		fn(Frame{Sequence: seq, Timestamp: time.Now(), Data: buf})
		seq++
	}
}

func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Recorder writes frames in the format FileSource replays.
type Recorder struct {
	w       io.Writer
	started bool
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// WriteFrame appends one frame, writing the file header first if needed.
func (r *Recorder) WriteFrame(data []byte) error {
	if !r.started {
		if _, err := io.WriteString(r.w, recordMagic); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		r.started = true
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := r.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
