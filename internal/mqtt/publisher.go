// Package mqtt forwards completed cycles to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/spectrum-manager/internal/config"
	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/model"
)

// Payload formats.
const (
	FormatJSON  = "json"
	FormatProto = "proto"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// message in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is the subset of the paho client used by the publisher.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher sends every cycle to <prefix>/cycle.
type Publisher struct {
	client Client
	topic  string
	format string
	qos    byte
	retain bool
	log    logging.Logger
}

// Connect dials the broker described by cfg and returns a publisher using it.
func Connect(ctx context.Context, cfg config.MQTTConfig, log logging.Logger) (*Publisher, error) {
	if log == nil {
		log = logging.Noop()
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "spectrum-" + logging.NewID()[:8]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info(context.Background(), "mqtt connected", logging.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn(context.Background(), "mqtt connection lost", logging.Err(err))
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token, connectTimeout); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	return NewPublisher(client, cfg, log), nil
}

// NewPublisher wraps an already connected client.
func NewPublisher(client Client, cfg config.MQTTConfig, log logging.Logger) *Publisher {
	if log == nil {
		log = logging.Noop()
	}
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "spectrum"
	}
	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = FormatJSON
	}
	return &Publisher{
		client: client,
		topic:  prefix + "/cycle",
		format: format,
		qos:    cfg.QoS,
		retain: cfg.Retain,
		log:    log,
	}
}

// Name identifies the publisher in metrics and logs.
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the topic cycles are published to.
func (p *Publisher) Topic() string { return p.topic }

// Publish encodes c and waits for the broker to accept it.
func (p *Publisher) Publish(ctx context.Context, c model.Cycle) error {
	payload, err := Encode(c, p.format)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, p.qos, p.retain, payload)
	if err := waitToken(ctx, token, publishTimeout); err != nil {
		return fmt.Errorf("publish cycle %s: %w", c.ID, err)
	}
	logging.LoggerFromContext(ctx, p.log).Debug(ctx, "cycle published",
		logging.String("topic", p.topic),
		logging.Int("bytes", len(payload)),
	)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}

// Encode renders a cycle in the given payload format.
func Encode(c model.Cycle, format string) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode cycle: %w", err)
	}
	switch format {
	case FormatJSON, "":
		return raw, nil
	case FormatProto:
		st, err := CycleStruct(raw)
		if err != nil {
			return nil, err
		}
		out, err := proto.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("encode cycle proto: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown mqtt payload format %q", format)
	}
}

// CycleStruct converts the JSON form of a cycle into a protobuf Struct with
// the same fields.
func CycleStruct(raw []byte) (*structpb.Struct, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode cycle json: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build cycle struct: %w", err)
	}
	return st, nil
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrPublishTimeout
	}
}
