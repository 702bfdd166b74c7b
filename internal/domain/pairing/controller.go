package pairing

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/domain/registration"
	"device-adapter-core/internal/ports"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxAttempts bounds how many failed confirmations a flow survives.
const DefaultMaxAttempts = 3

const retryMessage = "Failed to register, please try again."

// Attempt re-runs the underlying registration. nil means the device is now registered.
type Attempt func(ctx context.Context) error

// Controller drives identities from Unregistered through AwaitingPairing to
// Registered. Confirmations for one identity are serialized; a confirmation
// for an identity that is already registered is a no-op.
type Controller struct {
	tracker      *registration.Tracker
	configurator ports.Configurator
	recorder     ports.Recorder
	logger       zerolog.Logger
	maxAttempts  int

	mu    sync.Mutex
	flows map[string]*flow
}

type flow struct {
	mu        sync.Mutex // serializes confirmations
	requestID string     // guarded by Controller.mu
	attempt   Attempt
	failures  int
}

type Option func(*Controller)

func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithRecorder(r ports.Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

func NewController(tracker *registration.Tracker, configurator ports.Configurator, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		tracker:      tracker,
		configurator: configurator,
		recorder:     ports.NopRecorder{},
		logger:       logger.With().Str("component", "pairing").Logger(),
		maxAttempts:  DefaultMaxAttempts,
		flows:        make(map[string]*flow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin asks the user to pair identity and records the request. The caller
// must own the identity through a successful Tracker.TryBegin.
func (c *Controller) Begin(ctx context.Context, identity string, req model.ConfigRequest, attempt Attempt) (string, error) {
	c.mu.Lock()
	if existing, ok := c.flows[identity]; ok {
		id := existing.requestID
		c.mu.Unlock()
		c.configurator.NotifyErrors(id, retryMessage)
		return id, nil
	}
	f := &flow{attempt: attempt}
	f.mu.Lock()
	defer f.mu.Unlock()
	c.flows[identity] = f
	c.mu.Unlock()

	id, err := c.configurator.RequestConfig(req, func(ctx context.Context, _ map[string]string) {
		if _, err := c.Confirm(ctx, identity); err != nil {
			c.logger.Warn().Err(err).Str("identity", identity).Msg("Pairing confirmation failed")
		}
	})
	if err != nil {
		c.end(identity, f)
		c.tracker.Fail(identity, err.Error())
		return "", fmt.Errorf("requesting configuration for %s: %w", identity, err)
	}

	c.mu.Lock()
	f.requestID = id
	c.mu.Unlock()

	c.tracker.MarkAwaiting(identity, id)
	c.recorder.PairingRequest(identity)
	c.logger.Info().Str("identity", identity).Str("request_id", id).Msg("Waiting for user to pair device")
	return id, nil
}

// NotifyDuplicate tells the user that a setup attempt arrived while the
// identity is still waiting. It reports whether a flow exists.
func (c *Controller) NotifyDuplicate(identity string) bool {
	c.mu.Lock()
	f, ok := c.flows[identity]
	var id string
	if ok {
		id = f.requestID
	}
	c.mu.Unlock()
	if !ok || id == "" {
		return false
	}
	c.configurator.NotifyErrors(id, retryMessage)
	return true
}

// Confirm handles the user's "I have paired" event for identity.
func (c *Controller) Confirm(ctx context.Context, identity string) (model.RegistrationState, error) {
	c.mu.Lock()
	f, ok := c.flows[identity]
	c.mu.Unlock()
	if !ok {
		return c.settled(identity)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !c.active(identity, f) || !c.tracker.BeginRetry(identity) {
		return c.settled(identity)
	}

	c.mu.Lock()
	requestID := f.requestID
	c.mu.Unlock()

	err := f.attempt(ctx)
	if !c.active(identity, f) {
		// Cancelled while the attempt ran; the flow's owner has cleaned up.
		return c.settled(identity)
	}
	if err == nil {
		c.tracker.Complete(identity)
		c.end(identity, f)
		c.configurator.RequestDone(requestID)
		c.logger.Info().Str("identity", identity).Msg("Device paired")
		return model.StateRegistered, nil
	}

	f.failures++
	if f.failures >= c.maxAttempts {
		c.end(identity, f)
		c.configurator.NotifyErrors(requestID, fmt.Sprintf("Failed to register after %d attempts: %v", f.failures, err))
		c.configurator.RequestDone(requestID)
		c.tracker.Fail(identity, err.Error())
		c.logger.Error().Err(err).Str("identity", identity).Int("attempts", f.failures).Msg("Giving up on pairing")
		return model.StateUnregistered, fmt.Errorf("%w: %w", model.ErrPairingAbandoned, err)
	}

	c.tracker.EndRetry(identity, err.Error())
	c.configurator.NotifyErrors(requestID, retryMessage)
	c.logger.Warn().Err(err).Str("identity", identity).Int("attempts", f.failures).Msg("Pairing attempt failed")
	return model.StateAwaitingPairing, err
}

// Cancel ends the flow for identity, e.g. when the device is removed.
func (c *Controller) Cancel(identity string) bool {
	c.mu.Lock()
	f, ok := c.flows[identity]
	var id string
	if ok {
		id = f.requestID
		delete(c.flows, identity)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if id != "" {
		c.configurator.RequestDone(id)
	}
	return true
}

// RequestID returns the pending request id for identity, if any.
func (c *Controller) RequestID(identity string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flows[identity]
	if !ok {
		return "", false
	}
	return f.requestID, true
}

func (c *Controller) settled(identity string) (model.RegistrationState, error) {
	rec, ok := c.tracker.Get(identity)
	if !ok {
		rec.State = model.StateUnregistered
	}
	if rec.State == model.StateRegistered {
		return rec.State, nil
	}
	return rec.State, fmt.Errorf("%w: %s", model.ErrNoPairingFlow, identity)
}

func (c *Controller) active(identity string, f *flow) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flows[identity] == f
}

func (c *Controller) end(identity string, f *flow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flows[identity] == f {
		delete(c.flows, identity)
	}
}
