// Package events publishes accepted check-ins to the event bus.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/observability"
)

// Shards is the number of partitions the shard field spreads identities over.
const Shards = 64

// Event is the bus payload. It never carries the note or the raw identity.
type Event struct {
	ID        string         `json:"id"`
	Emotion   domain.Emotion `json:"emotion"`
	Intensity int            `json:"intensity"`
	Region    string         `json:"region"`
	Timestamp time.Time      `json:"timestamp"`
	Shard     uint64         `json:"shard"`
}

// FromCheckIn builds the event for an accepted check-in.
func FromCheckIn(c *domain.CheckIn) Event {
	return Event{
		ID:        c.ID,
		Emotion:   c.Emotion,
		Intensity: c.Intensity,
		Region:    c.RegionBucket,
		Timestamp: c.OccurredAt.UTC(),
		Shard:     observability.Shard(c.IdentityID, Shards),
	}
}

// Publisher sends events to the bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ---- MQTT ----

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = errors.New("events: mqtt not connected")

// client is the subset of mqtt.Client the publisher needs.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes events at QoS 0 to {prefix}/{region}.
type MQTTPublisher struct {
	Prefix string
	client client
	closer func()
}

// DialMQTT connects to broker and returns a publisher. The client
// reconnects on its own after the initial connection.
func DialMQTT(ctx context.Context, broker, clientID, prefix string, log zerolog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", broker).Msg("mqtt connected")
		})

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return &MQTTPublisher{
		Prefix: strings.TrimRight(prefix, "/"),
		client: c,
		closer: func() { c.Disconnect(250) },
	}, nil
}

// Topic returns the topic for region.
func (p *MQTTPublisher) Topic(region string) string {
	if region == "" {
		region = domain.RegionGlobal
	}
	return p.Prefix + "/" + region
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	tok := p.client.Publish(p.Topic(ev.Region), 0, false, data)
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// ---- log-only ----

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	Log zerolog.Logger
}

// Publish implements Publisher.
func (p LogPublisher) Publish(_ context.Context, ev Event) error {
	p.Log.Debug().
		Str("checkin_id", ev.ID).
		Str("emotion", string(ev.Emotion)).
		Str("region", ev.Region).
		Uint64("shard", ev.Shard).
		Msg("checkin event")
	return nil
}
