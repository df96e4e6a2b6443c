package app

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/publish"
)

func newTestServer(t *testing.T) (*httptest.Server, *Monitor, *hub) {
	t.Helper()
	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>viewer</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	m := NewMonitor(publish.Topics{})
	h := newHub()
	srv := httptest.NewServer(newWebMux(m, h, static))
	t.Cleanup(srv.Close)
	return srv, m, h
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func TestWebIMUEndpoint(t *testing.T) {
	srv, m, _ := newTestServer(t)

	if resp, _ := get(t, srv.URL+"/api/imu"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("before data: status %d", resp.StatusCode)
	}

	if _, err := m.Handle("uvc/imu", inertialMsg(t, "s", 2, 0, 1)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp, body := get(t, srv.URL+"/api/imu")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var got struct {
		Inertial publish.InertialPayload `json:"imu"`
		Pose     struct{ Roll float64 }  `json:"pose"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	if got.Inertial.Sequence != 2 || got.Inertial.Accel[2] != 1 {
		t.Errorf("imu = %+v", got.Inertial)
	}
}

func TestWebStatusAndStatic(t *testing.T) {
	srv, m, _ := newTestServer(t)
	if _, err := m.Handle("uvc/cam/1", imageMsg(t, "abc", 1, 5)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	_, body := get(t, srv.URL+"/api/status")
	var s Status
	if err := json.Unmarshal(body, &s); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	if s.Session != "abc" || s.Sequence != 5 || s.Images[1] != 1 {
		t.Errorf("status = %+v", s)
	}

	if _, body := get(t, srv.URL+"/"); !strings.Contains(string(body), "viewer") {
		t.Errorf("index = %q", body)
	}
}

func TestWebPreview(t *testing.T) {
	srv, m, _ := newTestServer(t)

	if resp, _ := get(t, srv.URL+"/api/preview/0"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("no image: status %d", resp.StatusCode)
	}
	if resp, _ := get(t, srv.URL+"/api/preview/left"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad index: status %d", resp.StatusCode)
	}

	pix := make([]byte, 64*32)
	msg := mustJSON(t, publish.NewImagePayload("s", calibration.Image{
		Camera: 0, Sequence: 1, Width: 64, Height: 32, Pixels: pix, Pair: -1,
	}))
	if _, err := m.Handle("uvc/cam/0", msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp, body := get(t, srv.URL+"/api/preview/0")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32+captionHeight {
		t.Errorf("preview bounds = %v", b)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	srv, _, h := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for h.count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if dropped := h.broadcast([]byte(`{"kind":"imu","seq":1}`)); dropped != 0 {
		t.Errorf("dropped for %d viewers", dropped)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Kind != EventInertial || ev.Sequence != 1 {
		t.Errorf("event = %+v (%v)", ev, err)
	}

	conn.Close()
	deadline = time.Now().Add(5 * time.Second)
	for h.count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer not removed after close")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHubDropsForSlowViewer(t *testing.T) {
	h := newHub()
	c := &wsClient{send: make(chan []byte, 1)}
	h.add(c)
	if dropped := h.broadcast([]byte("a")); dropped != 0 {
		t.Errorf("first message dropped")
	}
	if dropped := h.broadcast([]byte("b")); dropped != 1 {
		t.Errorf("full buffer: dropped = %d, want 1", dropped)
	}
	h.remove(c)
	h.remove(c)
	if h.count() != 0 {
		t.Errorf("count = %d after remove", h.count())
	}
}
