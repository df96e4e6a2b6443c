package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/uvc_stereo/internal/frame"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Capture sources.
const (
	SourceMock = "mock"
	SourceFile = "file"
)

// Config holds all application configuration values. It is built once by
// Load and never modified afterwards; pass it by pointer.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientID        string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	TopicPrefix         string
	PublishWait         time.Duration // how long a publish may hold the capture path

	// Topology
	CameraCount  int
	CameraConfig frame.Layout
	FrameWidth   int
	FrameHeight  int
	FrameRate    physic.Frequency

	// Stereo pairs, in stereo channel order. Empty means adjacent cameras.
	HomographyMapping []frame.Pair

	// Pipeline flags
	Flip               bool
	DepthMap           bool
	UseCombinedMessage bool
	PublishIndividual  bool
	CalibrationEnabled bool
	CalibrationFile    string

	// Auxiliary serial link to the device firmware
	SerialPort     string
	SerialBaudRate int

	// Capture
	CaptureSource string // "mock" or "file"
	CaptureFile   string
	CaptureLoop   bool
	LockFile      string

	// Web relay
	WebServerPort int

	LogLevel string
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		MQTTClientID:        "uvc-stereo-producer",
		MQTTClientIDConsole: "uvc-stereo-console",
		MQTTClientIDWeb:     "uvc-stereo-web",
		TopicPrefix:         "uvc",
		PublishWait:         100 * time.Millisecond,
		CameraCount:         2,
		CameraConfig:        frame.LayoutPlanar,
		FrameWidth:          frame.DefaultWidth,
		FrameHeight:         frame.DefaultHeight,
		FrameRate:           20 * physic.Hertz,
		PublishIndividual:   true,
		SerialBaudRate:      115200,
		CaptureSource:       SourceMock,
		LockFile:            "/tmp/uvc_stereo.lock",
		WebServerPort:       8080,
		LogLevel:            "info",
	}
}

// Load reads the configuration file and returns a validated Config.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func parseInt(key, value string, min, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, n)
	}
	return n, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "TOPIC_PREFIX":
		c.TopicPrefix = value
	case "PUBLISH_WAIT_MS":
		var ms int
		ms, err = parseInt(key, value, 0, 10000)
		c.PublishWait = time.Duration(ms) * time.Millisecond

	// Topology
	case "CAMERA_COUNT":
		c.CameraCount, err = parseInt(key, value, 1, frame.MaxCameras)
	case "CAMERA_CONFIG":
		var code int
		code, err = parseInt(key, value, 0, int(frame.LayoutPairInterleaved))
		c.CameraConfig = frame.Layout(code)
	case "FRAME_WIDTH":
		c.FrameWidth, err = parseInt(key, value, 1, 4096)
	case "FRAME_HEIGHT":
		c.FrameHeight, err = parseInt(key, value, 1, 4096)
	case "FRAME_RATE":
		var f physic.Frequency
		if err := f.Set(value); err != nil {
			return fmt.Errorf("invalid FRAME_RATE %q: %w", value, err)
		}
		if f < 0 {
			return fmt.Errorf("FRAME_RATE must not be negative, got %s", f)
		}
		c.FrameRate = f
	case "HOMOGRAPHY_MAPPING":
		pairs, perr := frame.ParsePairs(value)
		if perr != nil {
			return fmt.Errorf("invalid HOMOGRAPHY_MAPPING %q: %w", value, perr)
		}
		c.HomographyMapping = pairs

	// Pipeline flags
	case "FLIP":
		c.Flip, err = parseBool(key, value)
	case "DEPTH_MAP":
		c.DepthMap, err = parseBool(key, value)
	case "USE_COMBINED_MESSAGE":
		c.UseCombinedMessage, err = parseBool(key, value)
	case "PUBLISH_INDIVIDUAL":
		c.PublishIndividual, err = parseBool(key, value)
	case "CALIBRATION_ENABLED":
		c.CalibrationEnabled, err = parseBool(key, value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value, 1200, 4000000)

	// Capture
	case "CAPTURE_SOURCE":
		if value != SourceMock && value != SourceFile {
			return fmt.Errorf("CAPTURE_SOURCE must be %q or %q, got %q", SourceMock, SourceFile, value)
		}
		c.CaptureSource = value
	case "CAPTURE_FILE":
		c.CaptureFile = value
	case "CAPTURE_LOOP":
		c.CaptureLoop, err = parseBool(key, value)
	case "LOCK_FILE":
		c.LockFile = value

	// Web
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	case "LOG_LEVEL":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(value)
		default:
			return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("%w: MQTT_BROKER is required", ErrInvalidConfig)
	}
	topo := c.Topology()
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := frame.ValidatePairs(c.Pairs(), topo); err != nil {
		return fmt.Errorf("%w: HOMOGRAPHY_MAPPING: %w", ErrInvalidConfig, err)
	}
	if c.UseCombinedMessage && c.PublishIndividual {
		return fmt.Errorf("%w: USE_COMBINED_MESSAGE and PUBLISH_INDIVIDUAL are mutually exclusive", ErrInvalidConfig)
	}
	if c.CalibrationEnabled && c.CalibrationFile == "" {
		return fmt.Errorf("%w: CALIBRATION_FILE is required when CALIBRATION_ENABLED", ErrInvalidConfig)
	}
	if c.DepthMap && !c.CalibrationEnabled {
		return fmt.Errorf("%w: DEPTH_MAP needs CALIBRATION_ENABLED for the homographies", ErrInvalidConfig)
	}
	if c.CaptureSource == SourceFile && c.CaptureFile == "" {
		return fmt.Errorf("%w: CAPTURE_FILE is required for the file capture source", ErrInvalidConfig)
	}
	return nil
}

// Topology returns the camera topology described by the config.
func (c *Config) Topology() frame.Topology {
	return frame.Topology{
		CameraCount: c.CameraCount,
		Layout:      c.CameraConfig,
		Width:       c.FrameWidth,
		Height:      c.FrameHeight,
	}
}

// Pairs returns the configured stereo pairs, defaulting to adjacent cameras.
func (c *Config) Pairs() []frame.Pair {
	if len(c.HomographyMapping) > 0 {
		return c.HomographyMapping
	}
	return frame.DefaultPairs(c.CameraCount)
}

// FramePeriod is the capture period implied by FRAME_RATE; 0 means free
// running.
func (c *Config) FramePeriod() time.Duration {
	if c.FrameRate <= 0 {
		return 0
	}
	return c.FrameRate.Period()
}
