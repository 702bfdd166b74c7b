package ports

import (
	"context"
	"device-adapter-core/internal/domain/model"
)

// ConfigCallback runs when the user completes a configuration request.
type ConfigCallback func(ctx context.Context, data map[string]string)

// Configurator is the user-interaction collaborator used during pairing.
type Configurator interface {
	RequestConfig(req model.ConfigRequest, callback ConfigCallback) (string, error)
	NotifyErrors(requestID, message string)
	RequestDone(requestID string)
}

type ServiceHandler func(ctx context.Context, call model.ServiceCall) error

// ServiceRegistry exposes named actions such as hue.activate_scene.
type ServiceRegistry interface {
	Register(domain, service string, handler ServiceHandler) error
}

// EventPublisher announces registration changes to the outside world.
type EventPublisher interface {
	PublishRegistration(ctx context.Context, record model.RegistrationRecord) error
}

// Recorder collects operational counters.
type Recorder interface {
	CameraFetch(camera, result string)
	BridgeSetup(outcome model.SetupOutcome)
	PairingRequest(identity string)
	RegistrationState(state model.RegistrationState, delta float64)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) CameraFetch(string, string)                         {}
func (NopRecorder) BridgeSetup(model.SetupOutcome)                     {}
func (NopRecorder) PairingRequest(string)                              {}
func (NopRecorder) RegistrationState(model.RegistrationState, float64) {}
