package hue

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/amimof/huego"
	"github.com/rs/zerolog"
)

// DefaultDeviceType is the application name shown in the bridge whitelist.
const DefaultDeviceType = "device-adapter-core#adapter"

// Hue API error types.
const (
	apiErrUnauthorized  = 1
	apiErrLinkNotPushed = 101
)

var _ ports.BridgeConnector = (*Connector)(nil)

// Connector opens huego sessions. A host without a stored username is paired
// by creating a user, which only succeeds while the link button is pressed.
type Connector struct {
	deviceType string
	logger     zerolog.Logger
}

func NewConnector(deviceType string, logger zerolog.Logger) *Connector {
	if deviceType == "" {
		deviceType = DefaultDeviceType
	}
	return &Connector{
		deviceType: deviceType,
		logger:     logger.With().Str("component", "hue_connector").Logger(),
	}
}

func (c *Connector) Connect(ctx context.Context, host string, creds ports.CredentialStore) (ports.BridgeSession, error) {
	username, err := creds.Username(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("loading credentials for %s: %w", host, err)
	}

	if username == "" {
		username, err = huego.New(host, "").CreateUserContext(ctx, c.deviceType)
		if err != nil {
			return nil, classify(err)
		}
		if err := creds.SaveUsername(ctx, host, username); err != nil {
			c.logger.Error().Err(err).Str("host", host).Msg("Could not store bridge username")
		}
		c.logger.Info().Str("host", host).Msg("Registered with Hue bridge")
	}

	bridge := huego.New(host, username)
	if _, err := bridge.GetGroupsContext(ctx); err != nil {
		return nil, classify(err)
	}
	return &session{host: host, bridge: bridge, logger: c.logger}, nil
}

// classify maps huego and network failures onto domain errors.
func classify(err error) error {
	var apiErr *huego.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case apiErrUnauthorized, apiErrLinkNotPushed:
			return fmt.Errorf("%w: %s", model.ErrPairingRequired, apiErr.Description)
		}
		return err
	}

	// The bridge answers an unknown username with an error list where an
	// object was expected.
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", model.ErrPairingRequired, err)
	}

	msg := err.Error()
	switch {
	case errors.Is(err, syscall.ECONNREFUSED), strings.Contains(msg, "connection refused"):
		return fmt.Errorf("%w: %v", model.ErrConnectionRefused, err)
	case strings.Contains(msg, "link button not pressed"), strings.Contains(msg, "unauthorized user"):
		return fmt.Errorf("%w: %v", model.ErrPairingRequired, err)
	}
	return err
}
