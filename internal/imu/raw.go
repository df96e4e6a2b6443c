// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "encoding/binary"

// Raw represents a single raw IMU sample as embedded in a capture frame.
type Raw struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// BlockSize is the size in bytes of the raw inertial block.
const BlockSize = 12

// SwapInt16 reverses the byte order of a 16-bit word.
func SwapInt16(s int16) int16 {
	u := uint16(s)
	return int16(u<<8 | u>>8)
}

// Decode reads the six words of an inertial block. The device sends
// big-endian words regardless of the host's byte order.
// block must be at least BlockSize bytes long.
func Decode(block []byte) Raw {
	_ = block[BlockSize-1]
	word := func(i int) int16 {
		return int16(binary.BigEndian.Uint16(block[2*i:]))
	}
	return Raw{
		Ax: word(0),
		Ay: word(1),
		Az: word(2),
		Gx: word(3),
		Gy: word(4),
		Gz: word(5),
	}
}

// Encode writes r into block in device byte order. It is the inverse of
// Decode and is used by synthetic capture sources.
func Encode(block []byte, r Raw) {
	_ = block[BlockSize-1]
	for i, v := range [6]int16{r.Ax, r.Ay, r.Az, r.Gx, r.Gy, r.Gz} {
		binary.BigEndian.PutUint16(block[2*i:], uint16(v))
	}
}
