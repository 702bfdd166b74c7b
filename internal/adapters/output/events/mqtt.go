package events

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/domain/registration"
	"device-adapter-core/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	DefaultTopicPrefix = "device-adapter"
	publishTimeout     = 5 * time.Second
	qosAtLeastOnce     = 1
)

var _ ports.EventPublisher = (*Publisher)(nil)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// publisher is the slice of pahomqtt.Client the Publisher needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Options configure the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Publisher announces registration changes as retained JSON messages on
// <prefix>/hue/<identity>/registration.
type Publisher struct {
	client publisher
	prefix string
	logger zerolog.Logger
}

// Connect dials the broker and returns a Publisher with its disconnect func.
func Connect(opts Options, logger zerolog.Logger) (*Publisher, func(), error) {
	clientOpts := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	log := logger.With().Str("component", "mqtt").Logger()
	clientOpts.OnConnect = func(pahomqtt.Client) {
		log.Info().Str("broker", opts.Broker).Msg("MQTT connected")
	}
	clientOpts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT connection lost")
	}

	client := pahomqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, nil, fmt.Errorf("connecting to %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", opts.Broker, err)
	}

	disconnect := func() { client.Disconnect(250) }
	return NewPublisher(client, opts.TopicPrefix, logger), disconnect, nil
}

func NewPublisher(client publisher, prefix string, logger zerolog.Logger) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "mqtt").Logger(),
	}
}

func (p *Publisher) Topic(identity string) string {
	return p.prefix + "/hue/" + topicSafe(identity) + "/registration"
}

func (p *Publisher) PublishRegistration(ctx context.Context, record model.RegistrationRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.Topic(record.Identity), qosAtLeastOnce, true, payload)

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return ErrPublishTimeout
	}
}

// Observer publishes every tracker change. A dropped record is published
// as unregistered.
func (p *Publisher) Observer() registration.Observer {
	return func(prev, next *model.RegistrationRecord) {
		var record model.RegistrationRecord
		switch {
		case next != nil:
			record = *next
		case prev != nil:
			record = *prev
			record.State = model.StateUnregistered
			record.InFlight = false
			record.PairingRequestID = ""
		default:
			return
		}
		if err := p.PublishRegistration(context.Background(), record); err != nil {
			p.logger.Warn().Err(err).Str("identity", record.Identity).Msg("Could not publish registration")
		}
	}
}

// topicSafe replaces MQTT wildcard and level characters.
func topicSafe(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
