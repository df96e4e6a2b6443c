// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/uvc_stereo/internal/calibration"
	"github.com/relabs-tech/uvc_stereo/internal/imu"
	"github.com/relabs-tech/uvc_stereo/internal/router"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish within the configured wait.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// mqttClient is the subset of mqtt.Client the publisher needs.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher sends pipeline output to an MQTT broker as JSON.
type MQTTPublisher struct {
	client  mqttClient
	topics  Topics
	session string
	wait    time.Duration
}

// NewMQTTPublisher wraps a connected client. session tags every message so
// consumers can tell streaming sessions apart; wait bounds how long a
// publish may hold up the capture path.
func NewMQTTPublisher(client mqttClient, topics Topics, session string, wait time.Duration) *MQTTPublisher {
	return &MQTTPublisher{client: client, topics: topics, session: session, wait: wait}
}

// Connect dials the broker the way every binary in this repo does.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	return client, nil
}

func (p *MQTTPublisher) PublishImage(channel int, img calibration.Image) error {
	return p.send(p.topics.Image(channel), NewImagePayload(p.session, img))
}

func (p *MQTTPublisher) PublishStereo(pair int, left, right calibration.Image) error {
	return p.send(p.topics.Stereo(pair), StereoPayload{
		Session:  p.session,
		Sequence: left.Sequence,
		Pair:     pair,
		Left:     NewImagePayload(p.session, left),
		Right:    NewImagePayload(p.session, right),
	})
}

func (p *MQTTPublisher) PublishInertial(s imu.Sample) error {
	return p.send(p.topics.Inertial(), NewInertialPayload(p.session, s))
}

func (p *MQTTPublisher) PublishCombined(b router.Bundle) error {
	return p.send(p.topics.Combined(), NewCombinedPayload(p.session, b))
}

func (p *MQTTPublisher) send(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal (%s): %w", topic, err)
	}
	token := p.client.Publish(topic, 0, false, payload)
	if p.wait <= 0 {
		return nil
	}
	if !token.WaitTimeout(p.wait) {
		return fmt.Errorf("%s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", topic, err)
	}
	return nil
}
