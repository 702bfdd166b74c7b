package model

import "errors"

// Domain errors. Check them with errors.Is:
//
//	if errors.Is(err, model.ErrPairingRequired) {
//	    // start the pairing flow
//	}
var (
	// ErrTemplate is returned when a still image URL template cannot be rendered.
	ErrTemplate = errors.New("adapter: template error")

	// ErrTransport is returned for network failures and unusable HTTP responses.
	ErrTransport = errors.New("adapter: transport error")

	// ErrConnectionRefused is returned when the bridge host refuses the connection.
	ErrConnectionRefused = errors.New("adapter: connection refused")

	// ErrPairingRequired is returned when the bridge is reachable but has not authorized us.
	ErrPairingRequired = errors.New("adapter: pairing required")

	// ErrPairingAbandoned is returned when a pairing flow gave up after repeated failures.
	ErrPairingAbandoned = errors.New("adapter: pairing abandoned")

	// ErrNoPairingFlow is returned when a confirmation arrives for an identity without a flow.
	ErrNoPairingFlow = errors.New("adapter: no pairing flow")

	// ErrNoHost is returned when no bridge host is configured or discoverable.
	ErrNoHost = errors.New("adapter: no host found")

	// ErrBridgeNotFound is returned when no registered bridge matches an identity.
	ErrBridgeNotFound = errors.New("adapter: bridge not found")

	// ErrGroupNotFound is returned when a bridge has no group with the requested name.
	ErrGroupNotFound = errors.New("adapter: group not found")

	// ErrSceneNotFound is returned when a group has no scene with the requested name.
	ErrSceneNotFound = errors.New("adapter: scene not found")

	// ErrServiceNotFound is returned when calling a service nobody registered.
	ErrServiceNotFound = errors.New("adapter: service not found")

	// ErrInvalidServiceCall is returned when service call data fails validation.
	ErrInvalidServiceCall = errors.New("adapter: invalid service call")

	// ErrRequestNotFound is returned for unknown configurator request ids.
	ErrRequestNotFound = errors.New("adapter: configuration request not found")
)
