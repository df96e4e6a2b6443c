package fpga

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type packet struct {
	name string
	val  float32
}

func decodePackets(t *testing.T, data []byte) []packet {
	t.Helper()
	if len(data)%packetSize != 0 {
		t.Fatalf("stream of %d bytes is not a whole number of packets", len(data))
	}
	var out []packet
	for off := 0; off < len(data); off += packetSize {
		pkt := data[off : off+packetSize]
		if pkt[0] != syncByte {
			t.Fatalf("packet at %d: sync %#x", off, pkt[0])
		}
		var sum byte
		for _, b := range pkt[1 : packetSize-1] {
			sum ^= b
		}
		if sum != pkt[packetSize-1] {
			t.Fatalf("packet at %d: checksum %#x, want %#x", off, pkt[packetSize-1], sum)
		}
		out = append(out, packet{
			name: strings.TrimRight(string(pkt[1:1+nameLen]), "\x00"),
			val:  math.Float32frombits(binary.LittleEndian.Uint32(pkt[1+nameLen:])),
		})
	}
	return out
}

func TestSetParam(t *testing.T) {
	var buf bytes.Buffer
	l := NewLink(&buf, quiet)
	if err := l.SetParam("CAM0_F", 455.5); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	pkts := decodePackets(t, buf.Bytes())
	if len(pkts) != 1 || pkts[0].name != "CAM0_F" || pkts[0].val != 455.5 {
		t.Fatalf("packets = %+v", pkts)
	}

	if err := l.SetParam("", 1); err == nil {
		t.Error("empty name accepted")
	}
	if err := l.SetParam("THIS_NAME_IS_TOO_LONG", 1); err == nil {
		t.Error("17-byte name accepted")
	}
}

func TestSendCalibration(t *testing.T) {
	calib := `
cameras:
  - index: 0
    f: 400
    p: [320, 240]
    k1: 0.5
  - index: 1
    f: 410
    p: [321, 241]
    h: [2, 0, 0, 0, 2, 0, 0, 0, 1]
  - index: 5
    f: 420
    p: [0, 0]
`
	store, err := calibration.Parse([]byte(calib), frame.DefaultPairs(2))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var buf bytes.Buffer
	l := NewLink(&buf, quiet)
	topo := frame.Topology{CameraCount: 2, Layout: frame.LayoutRowInterleaved, Width: 4, Height: 4}
	if err := l.SendCalibration(store, topo); err != nil {
		t.Fatalf("SendCalibration: %v", err)
	}

	got := map[string]float32{}
	for _, p := range decodePackets(t, buf.Bytes()) {
		got[p.name] = p.val
	}
	// 2 header params + 2 cameras * (7 intrinsics + 9 homography entries).
	if len(got) != 2+2*16 {
		t.Fatalf("got %d distinct params", len(got))
	}
	checks := map[string]float32{
		"N_CAMERAS":     2,
		"CAMERA_CONFIG": float32(frame.LayoutRowInterleaved),
		"CAM0_F":        400,
		"CAM0_K1":       0.5,
		"CAM0_H11":      1,
		"CAM1_U0":       321,
		"CAM1_H11":      2,
		"CAM1_H33":      1,
	}
	for name, want := range checks {
		if got[name] != want {
			t.Errorf("%s = %v, want %v", name, got[name], want)
		}
	}
	if _, ok := got["CAM5_F"]; ok {
		t.Error("camera outside topology was sent")
	}
}
