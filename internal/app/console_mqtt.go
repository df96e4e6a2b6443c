package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/uvc_stereo/internal/config"
	"github.com/relabs-tech/uvc_stereo/internal/publish"
)

// RunConsoleMQTT prints every producer message as one line until Ctrl+C.
// With imuOnly set, image and stereo messages are counted but not printed.
func RunConsoleMQTT(cfg *config.Config, imuOnly bool) error {
	client, err := publish.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	slog.Info("console: connected to MQTT broker", "broker", cfg.MQTTBroker)

	topics := publish.Topics{Prefix: cfg.TopicPrefix}
	monitor := NewMonitor(topics)

	token := client.Subscribe(topics.Wildcard(), 0, func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := monitor.Handle(msg.Topic(), msg.Payload())
		if err != nil {
			if !errors.Is(err, ErrUnknownTopic) {
				slog.Warn("console: bad message", "topic", msg.Topic(), "err", err)
			}
			return
		}
		if imuOnly && (ev.Kind == EventImage || ev.Kind == EventStereo) {
			return
		}
		fmt.Println(FormatEvent(ev))
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	slog.Info("console: subscribed", "topic", topics.Wildcard())

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	s := monitor.Status()
	slog.Info("console: shutting down", "session", s.Session, "last_seq", s.Sequence, "combined", s.Combined)
	client.Disconnect(250)
	return nil
}
