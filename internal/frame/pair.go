// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Pair names the two cameras of a stereo pair.
type Pair struct {
	Left  int
	Right int
}

func (p Pair) String() string {
	return fmt.Sprintf("%d-%d", p.Left, p.Right)
}

// DefaultPairs pairs adjacent cameras: (0,1), (2,3), ...
func DefaultPairs(cameraCount int) []Pair {
	n := cameraCount / 2
	if n > MaxStereoPairs {
		n = MaxStereoPairs
	}
	pairs := make([]Pair, n)
	for i := range pairs {
		pairs[i] = Pair{Left: 2 * i, Right: 2*i + 1}
	}
	return pairs
}

// ParsePairs parses a homography mapping of the form "0-1,2-3".
func ParsePairs(s string) ([]Pair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var pairs []Pair
	for _, item := range strings.Split(s, ",") {
		left, right, ok := strings.Cut(strings.TrimSpace(item), "-")
		if !ok {
			return nil, fmt.Errorf("pair %q: expected LEFT-RIGHT", item)
		}
		l, err := strconv.Atoi(strings.TrimSpace(left))
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", item, err)
		}
		r, err := strconv.Atoi(strings.TrimSpace(right))
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", item, err)
		}
		pairs = append(pairs, Pair{Left: l, Right: r})
	}
	return pairs, nil
}

// ValidatePairs checks pairs against the topology: every index in range,
// no camera used twice, and no more than the topology allows.
func ValidatePairs(pairs []Pair, topo Topology) error {
	if len(pairs) > topo.MaxPairs() {
		return fmt.Errorf("%w: %d stereo pairs for %d cameras (max %d)",
			ErrInvalidTopology, len(pairs), topo.CameraCount, topo.MaxPairs())
	}
	used := make(map[int]bool, 2*len(pairs))
	for _, p := range pairs {
		for _, cam := range [2]int{p.Left, p.Right} {
			if cam < 0 || cam >= topo.CameraCount {
				return fmt.Errorf("%w: pair %s references camera %d of %d", ErrInvalidTopology, p, cam, topo.CameraCount)
			}
			if used[cam] {
				return fmt.Errorf("%w: camera %d appears in more than one pair", ErrInvalidTopology, cam)
			}
			used[cam] = true
		}
	}
	return nil
}
