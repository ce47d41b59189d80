package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"potion_master/internal/broadcast"
	"potion_master/internal/logger"
	"potion_master/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

type Settings struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// Publisher is the part of an MQTT client the bridge needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

type Feed interface {
	Subscribe(name string) *broadcast.Observer
	Unsubscribe(o *broadcast.Observer)
}

// Client is a connected paho client.
type Client struct {
	client mqtt.Client
}

// Connect dials the broker and waits for the first connection.
func Connect(s Settings, log *logger.Logger) (*Client, error) {
	if s.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.Broker)
	if s.ClientID != "" {
		opts.SetClientID(s.ClientID)
	}
	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnw("mqtt_connection_lost", "err", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Infow("mqtt_reconnecting")
	})

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}
	log.Infow("mqtt_connected", "broker", s.Broker)
	return &Client{client: c}, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish %s timed out", topic)
	}
	return token.Error()
}

func (c *Client) Close() {
	c.client.Disconnect(250)
}

// Bridge republishes hub events to <topic>/<event kind>.
// weight_update is too chatty for the broker and is skipped.
type Bridge struct {
	pub   Publisher
	topic string
	qos   byte
	log   *logger.Logger
}

func New(pub Publisher, topic string, qos byte, log *logger.Logger) *Bridge {
	return &Bridge{pub: pub, topic: strings.TrimSuffix(topic, "/"), qos: qos, log: log}
}

// Forward publishes a single event.
func (b *Bridge) Forward(ev models.Event) error {
	if ev.Kind == models.EventWeightUpdate {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	return b.pub.Publish(b.topic+"/"+string(ev.Kind), b.qos, false, payload)
}

// Run forwards events until ctx is done, resubscribing if the hub drops it.
func (b *Bridge) Run(ctx context.Context, feed Feed) {
	o := feed.Subscribe("mqtt")
	defer func() { feed.Unsubscribe(o) }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.Events():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				b.log.Warnw("mqtt_bridge_resubscribe")
				o = feed.Subscribe("mqtt")
				continue
			}
			if err := b.Forward(ev); err != nil {
				b.log.Warnw("mqtt_publish_failed", "event", ev.Kind, "err", err)
			}
		}
	}
}
