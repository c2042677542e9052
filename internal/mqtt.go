package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/exp/slog"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQoS            = 1
	mqttOnline         = "online"
	mqttOffline        = "offline"
)

var (
	ErrMQTTConnect = errors.New("mqtt: connection failed")
	ErrMQTTPublish = errors.New("mqtt: publish failed")
)

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Mirror republishes device presence and status reports as retained MQTT
// messages so non-websocket consumers can follow the device.
type Mirror struct {
	client mqttPublisher
	logger *slog.Logger
	prefix string
	close  func()
}

func ConnectMirror(logger *slog.Logger, broker, clientID, prefix string) (*Mirror, error) {
	prefix = strings.TrimSuffix(prefix, "/")

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetWill(prefix+"/relay", mqttOffline, mqttQoS, true)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		c.Publish(prefix+"/relay", mqttQoS, true, mqttOnline)
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Error("mqtt connection lost", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, mqttConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}

	m := newMirror(logger, client, prefix)
	m.close = func() {
		client.Publish(prefix+"/relay", mqttQoS, true, mqttOffline).WaitTimeout(mqttPublishTimeout)
		client.Disconnect(250)
	}

	return m, nil
}

func newMirror(logger *slog.Logger, client mqttPublisher, prefix string) *Mirror {
	return &Mirror{
		client: client,
		logger: logger,
		prefix: prefix,
		close:  func() {},
	}
}

func (m *Mirror) Observe(_ context.Context, event Event) {
	var topic, payload string

	switch event.Type {
	case EventTypeDeviceConnected:
		topic, payload = m.prefix+"/device", mqttOnline
	case EventTypeDeviceDisconnected:
		topic, payload = m.prefix+"/device", mqttOffline
	case EventTypeStatus:
		topic, payload = m.prefix+"/status", event.Payload
	default:
		return
	}

	if err := m.publish(topic, payload); err != nil {
		m.logger.Error("failed to mirror event", err, slog.String("topic", topic))
	}
}

func (m *Mirror) publish(topic, payload string) error {
	token := m.client.Publish(topic, mqttQoS, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrMQTTPublish, mqttPublishTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrMQTTPublish, err)
	}

	return nil
}

func (m *Mirror) Close() {
	m.close()
}
