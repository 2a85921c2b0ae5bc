// Package hass bridges Home Assistant entity state and commands over MQTT.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// StateSource exposes the entity states the coordinator reads each cycle.
type StateSource interface {
	// IsOn reports whether a switch-like entity is currently on.
	IsOn(entityID string) bool

	// Float returns the numeric state of a sensor entity.
	Float(entityID string) (float64, error)

	// SolarForecast returns the latest forecast as watt-hours keyed by
	// period start.
	SolarForecast() map[time.Time]float64
}

// Commander turns entities on and off.
type Commander interface {
	TurnOn(ctx context.Context, entityID string) error
	TurnOff(ctx context.Context, entityID string) error
}

// Bridge implements StateSource and Commander on top of the Home Assistant
// MQTT statestream. States arrive retained, so a fresh connection replays the
// current state of every subscribed entity.
type Bridge struct {
	client mqtt.Client

	broker        string
	clientID      string
	username      string
	password      string
	statePrefix   string
	commandPrefix string
	forecastTopic string

	mu       sync.RWMutex
	states   map[string]string
	forecast map[time.Time]float64
}

var (
	_ StateSource = (*Bridge)(nil)
	_ Commander   = (*Bridge)(nil)
)

// Configured sets up the Home Assistant bridge based on flags.
func Configured() *Bridge {
	broker := lflag.String("mqtt-broker", "tcp://localhost:1883", "Address of the MQTT broker")
	clientID := lflag.String("mqtt-client-id", "ergbridge", "MQTT client ID")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	statePrefix := lflag.String("mqtt-state-prefix", "homeassistant/statestream", "Topic prefix of the Home Assistant statestream")
	commandPrefix := lflag.String("mqtt-command-prefix", "ergbridge/command", "Topic prefix for entity commands")
	forecastTopic := lflag.String("mqtt-forecast-topic", "ergbridge/solar_forecast", "Topic carrying the solar forecast JSON")

	b := newBridge()

	lflag.Do(func() {
		b.broker = *broker
		b.clientID = *clientID
		b.username = *username
		b.password = *password
		b.statePrefix = strings.TrimRight(*statePrefix, "/")
		b.commandPrefix = strings.TrimRight(*commandPrefix, "/")
		b.forecastTopic = *forecastTopic

		if err := b.Validate(); err != nil {
			panic(fmt.Sprintf("invalid mqtt configuration: %v", err))
		}
	})

	return b
}

func newBridge() *Bridge {
	return &Bridge{
		states:   make(map[string]string),
		forecast: make(map[time.Time]float64),
	}
}

// Validate checks if the bridge is properly configured.
func (b *Bridge) Validate() error {
	if b.broker == "" {
		return errors.New("mqtt-broker cannot be empty")
	}
	return nil
}

// Init connects to the broker and subscribes to the statestream and forecast
// topics. Reconnects resubscribe automatically.
func (b *Bridge) Init(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.broker)
	opts.SetClientID(b.clientID)
	opts.SetUsername(b.username)
	opts.SetPassword(b.password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Ctx(ctx).WarnContext(ctx, "mqtt connection lost", slog.Any("error", err))
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Ctx(ctx).InfoContext(ctx, "connected to mqtt broker", slog.String("broker", b.broker))

		if token := client.Subscribe(b.statePrefix+"/#", 0, b.onState); token.Wait() && token.Error() != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to subscribe to statestream", slog.Any("error", token.Error()))
		}
		if token := client.Subscribe(b.forecastTopic, 0, b.onForecast); token.Wait() && token.Error() != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to subscribe to forecast topic", slog.Any("error", token.Error()))
		}
	})

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

// entityFromTopic maps a statestream topic back to an entity ID:
// homeassistant/statestream/switch/pool_pump/state -> switch.pool_pump.
func (b *Bridge) entityFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.statePrefix+"/")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "state" {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}

func (b *Bridge) onState(_ mqtt.Client, msg mqtt.Message) {
	entity, ok := b.entityFromTopic(msg.Topic())
	if !ok {
		return
	}
	value := string(msg.Payload())

	// sensors drop out and publish these instead of a real state
	if value == "unavailable" || value == "unknown" || value == "" {
		return
	}

	b.mu.Lock()
	b.states[entity] = value
	b.mu.Unlock()
}

type forecastPayload struct {
	WHHours map[string]float64 `json:"wh_hours"`
}

func (b *Bridge) onForecast(_ mqtt.Client, msg mqtt.Message) {
	ctx := context.Background()

	var payload forecastPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "discarding malformed solar forecast", slog.Any("error", err))
		return
	}

	forecast := make(map[time.Time]float64, len(payload.WHHours))
	for raw, wh := range payload.WHHours {
		instant, err := types.ParseInstant(raw)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping unparseable forecast timestamp",
				slog.String("timestamp", raw), slog.Any("error", err))
			continue
		}
		forecast[instant] = wh
	}

	b.mu.Lock()
	b.forecast = forecast
	b.mu.Unlock()
}

// IsOn reports whether a switch-like entity is currently on.
func (b *Bridge) IsOn(entityID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.EqualFold(b.states[entityID], "on")
}

// Float returns the numeric state of a sensor entity.
func (b *Bridge) Float(entityID string) (float64, error) {
	b.mu.RLock()
	value, ok := b.states[entityID]
	b.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("no state for entity %s", entityID)
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("entity %s has non-numeric state %q: %w", entityID, value, err)
	}
	return f, nil
}

// SolarForecast returns a copy of the latest forecast.
func (b *Bridge) SolarForecast() map[time.Time]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[time.Time]float64, len(b.forecast))
	for k, v := range b.forecast {
		out[k] = v
	}
	return out
}

func (b *Bridge) publishCommand(ctx context.Context, entityID, payload string) error {
	topic := b.commandPrefix + "/" + strings.ReplaceAll(entityID, ".", "/") + "/set"
	token := b.client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "published command",
		slog.String("entity", entityID), slog.String("payload", payload))
	return nil
}

// TurnOn commands an entity on.
func (b *Bridge) TurnOn(ctx context.Context, entityID string) error {
	return b.publishCommand(ctx, entityID, "ON")
}

// TurnOff commands an entity off.
func (b *Bridge) TurnOff(ctx context.Context, entityID string) error {
	return b.publishCommand(ctx, entityID, "OFF")
}
