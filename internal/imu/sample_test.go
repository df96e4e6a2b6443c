package imu

import (
	"math"
	"testing"
	"time"
)

func TestSwapInt16(t *testing.T) {
	tests := []struct {
		in, want int16
	}{
		{0x0102, 0x0201},
		{0x0040, 0x4000},
		{-1, -1},
		{0, 0},
		{int16(-0x7F00), 0x0081},
	}
	for _, tt := range tests {
		if got := SwapInt16(tt.in); got != tt.want {
			t.Errorf("SwapInt16(%#04x) = %#04x, want %#04x", uint16(tt.in), uint16(got), uint16(tt.want))
		}
		if got := SwapInt16(SwapInt16(tt.in)); got != tt.in {
			t.Errorf("double swap of %#04x = %#04x", uint16(tt.in), uint16(got))
		}
	}
}

func TestDecodeBigEndian(t *testing.T) {
	// 16384 = 0x4000, 131 = 0x0083, -2 = 0xFFFE
	block := []byte{
		0x40, 0x00, // ax
		0xFF, 0xFE, // ay
		0x00, 0x01, // az
		0x00, 0x83, // gx
		0x80, 0x00, // gy
		0x7F, 0xFF, // gz
	}
	got := Decode(block)
	want := Raw{Ax: 16384, Ay: -2, Az: 1, Gx: 131, Gy: math.MinInt16, Gz: math.MaxInt16}
	if got != want {
		t.Fatalf("Decode = %+v, want %+v", got, want)
	}

	out := make([]byte, BlockSize)
	Encode(out, want)
	for i := range block {
		if out[i] != block[i] {
			t.Fatalf("Encode byte %d = %#02x, want %#02x", i, out[i], block[i])
		}
	}
}

func TestConvertUnitScale(t *testing.T) {
	block := make([]byte, BlockSize)
	Encode(block, Raw{Ax: 16384, Gx: 131})

	ts := time.Unix(1700000000, 0)
	s := Convert(block, ts, 42)

	const eps = 1e-12
	if math.Abs(s.Accel[0]-1.0) > eps || s.Accel[1] != 0 || s.Accel[2] != 0 {
		t.Errorf("accel = %v, want [1 0 0]", s.Accel)
	}
	if want := 2 * math.Pi / 360; math.Abs(s.Gyro[0]-want) > eps || s.Gyro[1] != 0 || s.Gyro[2] != 0 {
		t.Errorf("gyro = %v, want [%v 0 0]", s.Gyro, want)
	}
	if s.Sequence != 42 || !s.Timestamp.Equal(ts) {
		t.Errorf("metadata = seq %d ts %v", s.Sequence, s.Timestamp)
	}
	if got := s.AccelMS2()[0]; math.Abs(got-StandardGravity) > eps {
		t.Errorf("AccelMS2 x = %v, want %v", got, StandardGravity)
	}
}

func TestConvertNegativeFullScale(t *testing.T) {
	block := make([]byte, BlockSize)
	Encode(block, Raw{Az: -32768, Gz: -131})
	s := Convert(block, time.Time{}, 0)
	if s.Accel[2] != -2.0 {
		t.Errorf("accel z = %v, want -2", s.Accel[2])
	}
	if want := -DegToRad; math.Abs(s.Gyro[2]-want) > 1e-12 {
		t.Errorf("gyro z = %v, want %v", s.Gyro[2], want)
	}
}
