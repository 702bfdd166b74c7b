package model

import "time"

type RegistrationState string

const (
	StateUnregistered    RegistrationState = "unregistered"
	StateAwaitingPairing RegistrationState = "awaiting_pairing"
	StateRegistered      RegistrationState = "registered"
)

// RegistrationRecord tracks one physical device by its normalized identity.
type RegistrationRecord struct {
	Identity         string            `json:"identity"`
	State            RegistrationState `json:"state"`
	PairingRequestID string            `json:"pairing_request_id,omitempty"`
	InFlight         bool              `json:"in_flight"`
	Reason           string            `json:"reason,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type BeginResult int

const (
	Proceed BeginResult = iota
	AlreadyConfigured
	AlreadyInFlight
)

func (r BeginResult) String() string {
	switch r {
	case Proceed:
		return "proceed"
	case AlreadyConfigured:
		return "already_configured"
	case AlreadyInFlight:
		return "already_in_flight"
	}
	return "unknown"
}

type SetupOutcome string

const (
	OutcomeRegistered        SetupOutcome = "registered"
	OutcomeAwaitingPairing   SetupOutcome = "awaiting_pairing"
	OutcomeAlreadyConfigured SetupOutcome = "already_configured"
	OutcomeAlreadyInFlight   SetupOutcome = "already_in_flight"
	OutcomeFailed            SetupOutcome = "failed"
)

// BridgeConfig is the setup request for one bridge.
type BridgeConfig struct {
	Host     string `json:"host"`
	Filename string `json:"filename,omitempty"` // Credential file, defaults to phue.conf
}

const DefaultCredentialFile = "phue.conf"
