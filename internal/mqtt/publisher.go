// Package mqtt publishes the earbuds status to an MQTT broker with Home
// Assistant discovery.
//
// Every status is published as one retained JSON document on
// budwatch/<device>/state; the discovered entities pick their field with a
// value template. Availability is tracked with a retained birth message and
// an "offline" will message.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"budwatch/internal/ble"
	"budwatch/internal/config"
	"budwatch/internal/podstate"
)

// brokerPublisher is the part of [autopaho.ConnectionManager] the publish
// helpers need.
type brokerPublisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher manages the MQTT connection, publishes HA discovery config
// messages on (re-)connect, and pushes every status change to the broker.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager

	mu      sync.Mutex
	status  podstate.DeviceStatus
	changed chan struct{}
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.DeviceName),
		logger:     logger,
		status:     podstate.NewDeviceStatus(),
		changed:    make(chan struct{}, 1),
	}
}

// HandleStatus is a tracker callback. It never blocks: statuses arriving
// faster than the broker accepts them collapse into the latest one.
func (p *Publisher) HandleStatus(status podstate.DeviceStatus) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

func (p *Publisher) latest() podstate.DeviceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start connects to the MQTT broker and publishes status changes until
// ctx is cancelled. On every (re-)connect it publishes discovery configs,
// a birth message and the current status.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
			p.publishState(ctx, cm, p.latest())
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "budwatch-" + p.cfg.DeviceName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.changed:
			p.publishState(ctx, cm, p.latest())
		}
	}
}

// Stop publishes the latest status and an "offline" availability message,
// then disconnects. Statuses handled after Start returned (such as the final
// disconnect) reach the broker this way.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishFinal(ctx, p.cm)
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) publishFinal(ctx context.Context, pub brokerPublisher) {
	p.publishState(ctx, pub, p.latest())
	p.publishAvailability(ctx, pub, "offline")
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return "budwatch/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic() string {
	return p.baseTopic() + "/state"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/" + p.cfg.DeviceName + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	component    string
	entitySuffix string
	config       SensorConfig
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	battery := func(entity, label string) sensorDef {
		return sensorDef{
			component:    "sensor",
			entitySuffix: entity,
			config: SensorConfig{
				Name:              p.device.Name + " " + label,
				UniqueID:          p.instanceID + "_" + entity,
				StateTopic:        p.stateTopic(),
				AvailabilityTopic: p.availabilityTopic(),
				Device:            p.device,
				DeviceClass:       "battery",
				UnitOfMeasurement: "%",
				StateClass:        "measurement",
				ValueTemplate:     "{{ value_json." + entity + " }}",
			},
		}
	}

	return []sensorDef{
		battery("left_battery", "Left Battery"),
		battery("right_battery", "Right Battery"),
		battery("case_battery", "Case Battery"),
		{
			component:    "binary_sensor",
			entitySuffix: "connected",
			config: SensorConfig{
				Name:              p.device.Name + " Connected",
				UniqueID:          p.instanceID + "_connected",
				StateTopic:        p.stateTopic(),
				AvailabilityTopic: p.availabilityTopic(),
				Device:            p.device,
				DeviceClass:       "connectivity",
				ValueTemplate:     "{{ 'ON' if value_json.connected else 'OFF' }}",
				PayloadOn:         "ON",
				PayloadOff:        "OFF",
			},
		},
		{
			component:    "sensor",
			entitySuffix: "model",
			config: SensorConfig{
				Name:              p.device.Name + " Model",
				UniqueID:          p.instanceID + "_model",
				StateTopic:        p.stateTopic(),
				AvailabilityTopic: p.availabilityTopic(),
				Device:            p.device,
				Icon:              "mdi:earbuds",
				ValueTemplate:     "{{ value_json.model }}",
				EntityCategory:    "diagnostic",
			},
		},
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, pub brokerPublisher) {
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic(s.component, s.entitySuffix)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload",
				"entity", s.entitySuffix, "error", err)
			continue
		}

		if _, err := pub.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed",
				"entity", s.entitySuffix, "topic", topic, "error", err)
		} else {
			p.logger.Debug("mqtt discovery published",
				"entity", s.entitySuffix, "topic", topic)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, pub brokerPublisher, status string) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- State ---

// statePayload is the JSON document published on the state topic.
// Unknown battery levels are null.
type statePayload struct {
	Connected     bool   `json:"connected"`
	LeftBattery   *int   `json:"left_battery"`
	RightBattery  *int   `json:"right_battery"`
	CaseBattery   *int   `json:"case_battery"`
	LeftCharging  bool   `json:"left_charging"`
	RightCharging bool   `json:"right_charging"`
	CaseCharging  bool   `json:"case_charging"`
	Model         string `json:"model"`
}

func newStatePayload(s podstate.DeviceStatus) statePayload {
	return statePayload{
		Connected:     s.Connected,
		LeftBattery:   knownLevel(s.LeftBattery),
		RightBattery:  knownLevel(s.RightBattery),
		CaseBattery:   knownLevel(s.CaseBattery),
		LeftCharging:  s.LeftCharging,
		RightCharging: s.RightCharging,
		CaseCharging:  s.CaseCharging,
		Model:         s.Model,
	}
}

func knownLevel(level int) *int {
	if level == ble.UnknownBattery {
		return nil
	}
	return &level
}

func (p *Publisher) publishState(ctx context.Context, pub brokerPublisher, status podstate.DeviceStatus) {
	payload, err := json.Marshal(newStatePayload(status))
	if err != nil {
		p.logger.Error("mqtt marshal state payload", "error", err)
		return
	}

	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   p.stateTopic(),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt state publish failed", "error", err)
		return
	}
	p.logger.Debug("mqtt state published", "status", status)
}
