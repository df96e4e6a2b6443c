// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/image/math/f64"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

// fileFormat is the on-disk calibration layout:
//
//	cameras:
//	  - index: 0
//	    f: 455.2
//	    p: [376.0, 240.0]
//	    k1: -0.28
//	    k2: 0.07
//	    r1: 0.0
//	    r2: 0.0
//	    h: [1, 0, 0, 0, 1, 0, 0, 0, 1]
type fileFormat struct {
	Cameras []cameraEntry `yaml:"cameras"`
}

type cameraEntry struct {
	Index *int      `yaml:"index"`
	F     float64   `yaml:"f"`
	P     []float64 `yaml:"p"`
	K1    float64   `yaml:"k1"`
	K2    float64   `yaml:"k2"`
	R1    float64   `yaml:"r1"`
	R2    float64   `yaml:"r2"`
	H     []float64 `yaml:"h"`
}

// LoadFile reads a YAML calibration file and builds a Store for the given
// stereo pairs.
func LoadFile(path string, pairs []frame.Pair) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalibrationLoad, err)
	}
	s, err := Parse(data, pairs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes calibration YAML.
func Parse(data []byte, pairs []frame.Pair) (*Store, error) {
	var doc fileFormat
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrCalibrationLoad, err)
	}
	if len(doc.Cameras) == 0 {
		return nil, fmt.Errorf("%w: no cameras defined", ErrCalibrationLoad)
	}

	intrinsics := make(map[int]CameraIntrinsics, len(doc.Cameras))
	homographies := make(map[int]f64.Mat3, len(doc.Cameras))
	for i, c := range doc.Cameras {
		if c.Index == nil {
			return nil, fmt.Errorf("%w: camera entry %d has no index", ErrCalibrationLoad, i)
		}
		cam := *c.Index
		if cam < 0 || cam >= frame.MaxCameras {
			return nil, fmt.Errorf("%w: camera index %d outside 0-%d", ErrCalibrationLoad, cam, frame.MaxCameras-1)
		}
		if _, dup := intrinsics[cam]; dup {
			return nil, fmt.Errorf("%w: camera %d defined twice", ErrCalibrationLoad, cam)
		}
		if c.F <= 0 {
			return nil, fmt.Errorf("%w: camera %d focal length must be positive, got %v", ErrCalibrationLoad, cam, c.F)
		}
		if len(c.P) != 2 {
			return nil, fmt.Errorf("%w: camera %d principal point needs 2 values, got %d", ErrCalibrationLoad, cam, len(c.P))
		}
		intrinsics[cam] = CameraIntrinsics{
			FocalLength:    c.F,
			PrincipalPoint: f64.Vec2{c.P[0], c.P[1]},
			K1:             c.K1,
			K2:             c.K2,
			R1:             c.R1,
			R2:             c.R2,
		}

		switch len(c.H) {
		case 0:
		case 9:
			var h f64.Mat3
			copy(h[:], c.H)
			homographies[cam] = h
		default:
			return nil, fmt.Errorf("%w: camera %d homography needs 9 values, got %d", ErrCalibrationLoad, cam, len(c.H))
		}
	}

	return NewStore(intrinsics, homographies, pairs)
}
