package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/uvc_stereo/internal/imu"
	"github.com/relabs-tech/uvc_stereo/internal/orientation"
	"github.com/relabs-tech/uvc_stereo/internal/publish"
)

// ErrUnknownTopic is returned for messages outside the producer's topics.
var ErrUnknownTopic = errors.New("unknown topic")

// Event kinds.
const (
	EventInertial = "imu"
	EventImage    = "image"
	EventStereo   = "stereo"
	EventCombined = "combined"
)

// Event is a compact summary of one producer message, without pixels.
type Event struct {
	Kind       string                   `json:"kind"`
	Session    string                   `json:"session"`
	Sequence   uint64                   `json:"seq"`
	Channel    int                      `json:"channel"`
	Width      int                      `json:"width,omitempty"`
	Height     int                      `json:"height,omitempty"`
	Calibrated bool                     `json:"calibrated,omitempty"`
	Cameras    []int                    `json:"cameras,omitempty"`
	Inertial   *publish.InertialPayload `json:"imu,omitempty"`
	Pose       *orientation.Pose        `json:"pose,omitempty"`
}

// Status is the state accumulated for the current producer session.
type Status struct {
	Session  string                   `json:"session"`
	Sequence uint64                   `json:"seq"`
	Inertial *publish.InertialPayload `json:"imu,omitempty"`
	Pose     *orientation.Pose        `json:"pose,omitempty"`
	Images   map[int]uint64           `json:"images"`
	Stereo   map[int]uint64           `json:"stereo"`
	Combined uint64                   `json:"combined"`
}

// Monitor folds the producer's MQTT messages into the latest state shown by
// the console and web front ends. A new session id resets it.
type Monitor struct {
	prefix string

	mu      sync.RWMutex
	tracker *orientation.Tracker
	status  Status
	latest  map[int]publish.ImagePayload
}

func NewMonitor(topics publish.Topics) *Monitor {
	m := &Monitor{prefix: strings.TrimSuffix(topics.Wildcard(), "#")}
	m.reset("")
	return m
}

func (m *Monitor) reset(session string) {
	m.tracker = orientation.NewTracker()
	m.status = Status{
		Session: session,
		Images:  make(map[int]uint64),
		Stereo:  make(map[int]uint64),
	}
	m.latest = make(map[int]publish.ImagePayload)
}

// Handle decodes one message and updates the state.
func (m *Monitor) Handle(topic string, payload []byte) (Event, error) {
	rest, ok := strings.CutPrefix(topic, m.prefix)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	switch {
	case rest == "imu":
		var p publish.InertialPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("inertial unmarshal: %w", err)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.session(p.Session)
		pose := m.inertial(p)
		return Event{Kind: EventInertial, Session: p.Session, Sequence: p.Sequence, Inertial: &p, Pose: &pose}, nil

	case rest == "combined":
		var p publish.CombinedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("combined unmarshal: %w", err)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.session(p.Session)
		ev := Event{Kind: EventCombined, Session: p.Session, Sequence: p.Sequence}
		for _, img := range p.Images {
			m.image(img)
			ev.Cameras = append(ev.Cameras, img.Camera)
		}
		m.status.Combined++
		in := p.Inertial
		pose := m.inertial(in)
		ev.Inertial, ev.Pose = &in, &pose
		return ev, nil

	case strings.HasPrefix(rest, "cam/"):
		ch, err := channel(rest, "cam/")
		if err != nil {
			return Event{}, err
		}
		var p publish.ImagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("image unmarshal: %w", err)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.session(p.Session)
		m.image(p)
		return Event{
			Kind: EventImage, Session: p.Session, Sequence: p.Sequence, Channel: ch,
			Width: p.Width, Height: p.Height, Calibrated: p.Calibrated,
		}, nil

	case strings.HasPrefix(rest, "stereo/"):
		ch, err := channel(rest, "stereo/")
		if err != nil {
			return Event{}, err
		}
		var p publish.StereoPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, fmt.Errorf("stereo unmarshal: %w", err)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.session(p.Session)
		m.status.Stereo[ch]++
		m.bump(p.Sequence)
		return Event{
			Kind: EventStereo, Session: p.Session, Sequence: p.Sequence, Channel: ch,
			Width: p.Left.Width, Height: p.Left.Height, Calibrated: p.Left.Calibrated,
			Cameras: []int{p.Left.Camera, p.Right.Camera},
		}, nil
	}
	return Event{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

func channel(rest, prefix string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(rest, prefix))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad channel in %q", ErrUnknownTopic, rest)
	}
	return n, nil
}

// session resets the state when a different producer session shows up.
// Callers hold m.mu.
func (m *Monitor) session(id string) {
	if id != m.status.Session {
		m.reset(id)
	}
}

func (m *Monitor) bump(seq uint64) {
	if seq > m.status.Sequence {
		m.status.Sequence = seq
	}
}

func (m *Monitor) image(p publish.ImagePayload) {
	m.status.Images[p.Camera]++
	m.latest[p.Camera] = p
	m.bump(p.Sequence)
}

func (m *Monitor) inertial(p publish.InertialPayload) orientation.Pose {
	pose := m.tracker.Update(imu.Sample{
		Sequence:  p.Sequence,
		Timestamp: p.Timestamp,
		Accel:     p.Accel,
		Gyro:      p.Gyro,
	})
	m.status.Inertial = &p
	m.status.Pose = &pose
	m.bump(p.Sequence)
	return pose
}

// Status returns a copy of the current state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	s.Images = make(map[int]uint64, len(m.status.Images))
	for k, v := range m.status.Images {
		s.Images[k] = v
	}
	s.Stereo = make(map[int]uint64, len(m.status.Stereo))
	for k, v := range m.status.Stereo {
		s.Stereo[k] = v
	}
	return s
}

// LatestImage returns the last image seen from camera.
func (m *Monitor) LatestImage(camera int) (publish.ImagePayload, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.latest[camera]
	return p, ok
}

// FormatEvent renders an event as one console line.
func FormatEvent(e Event) string {
	switch e.Kind {
	case EventInertial:
		return fmt.Sprintf("[IMU ]  seq=%d  %s", e.Sequence, formatInertial(e))
	case EventImage:
		return fmt.Sprintf("[CAM%d]  seq=%d  %dx%d  calibrated=%v", e.Channel, e.Sequence, e.Width, e.Height, e.Calibrated)
	case EventStereo:
		return fmt.Sprintf("[STR%d]  seq=%d  cams=%v  %dx%d  calibrated=%v", e.Channel, e.Sequence, e.Cameras, e.Width, e.Height, e.Calibrated)
	case EventCombined:
		return fmt.Sprintf("[COMB]  seq=%d  cams=%v  %s", e.Sequence, e.Cameras, formatInertial(e))
	}
	return fmt.Sprintf("[%s] seq=%d", e.Kind, e.Sequence)
}

func formatInertial(e Event) string {
	if e.Inertial == nil || e.Pose == nil {
		return "no imu"
	}
	a, g, p := e.Inertial.Accel, e.Inertial.Gyro, e.Pose
	return fmt.Sprintf(
		"ax=%6.3f ay=%6.3f az=%6.3f g  gx=%7.3f gy=%7.3f gz=%7.3f rad/s  ROLL=%6.2f PITCH=%6.2f YAW=%6.2f",
		a[0], a[1], a[2], g[0], g[1], g[2], p.Roll, p.Pitch, p.Yaw,
	)
}
