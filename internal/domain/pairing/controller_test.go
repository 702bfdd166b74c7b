package pairing

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/domain/registration"
	"device-adapter-core/internal/ports"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockConfigurator struct {
	mock.Mock
	mu       sync.Mutex
	callback ports.ConfigCallback
}

func (m *MockConfigurator) RequestConfig(req model.ConfigRequest, callback ports.ConfigCallback) (string, error) {
	m.mu.Lock()
	m.callback = callback
	m.mu.Unlock()
	args := m.Called(req, callback)
	return args.String(0), args.Error(1)
}

func (m *MockConfigurator) NotifyErrors(requestID, message string) {
	m.Called(requestID, message)
}

func (m *MockConfigurator) RequestDone(requestID string) {
	m.Called(requestID)
}

func (m *MockConfigurator) fire() {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	cb(context.Background(), nil)
}

var hueRequest = model.ConfigRequest{Title: "Philips Hue"}

func newController(t *testing.T, opts ...Option) (*Controller, *registration.Tracker, *MockConfigurator) {
	t.Helper()
	tr := registration.NewTracker()
	conf := new(MockConfigurator)
	return NewController(tr, conf, zerolog.Nop(), opts...), tr, conf
}

func TestController_BeginRequestsConfiguration(t *testing.T) {
	c, tr, conf := newController(t)
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("req-1", nil).Once()

	require.Equal(t, model.Proceed, tr.TryBegin("10.0.0.5"))
	id, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "req-1", id)
	rec, _ := tr.Get("10.0.0.5")
	assert.Equal(t, model.StateAwaitingPairing, rec.State)
	assert.Equal(t, "req-1", rec.PairingRequestID)
	conf.AssertExpectations(t)
}

func TestController_ConfirmRegistersExactlyOnce(t *testing.T) {
	c, tr, conf := newController(t)
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("req-1", nil)
	conf.On("RequestDone", "req-1").Return().Once()

	var attempts atomic.Int32
	tr.TryBegin("10.0.0.5")
	_, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error {
		attempts.Add(1)
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conf.fire()
		}()
	}
	wg.Wait()

	state, err := c.Confirm(context.Background(), "10.0.0.5")
	assert.NoError(t, err)
	assert.Equal(t, model.StateRegistered, state)
	assert.Equal(t, int32(1), attempts.Load())
	_, pending := c.RequestID("10.0.0.5")
	assert.False(t, pending)
	conf.AssertExpectations(t)
}

func TestController_FailedConfirmStaysAwaiting(t *testing.T) {
	c, tr, conf := newController(t)
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("req-1", nil)
	conf.On("NotifyErrors", "req-1", retryMessage).Return().Once()

	tr.TryBegin("10.0.0.5")
	_, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error {
		return model.ErrPairingRequired
	})
	require.NoError(t, err)

	state, err := c.Confirm(context.Background(), "10.0.0.5")
	assert.ErrorIs(t, err, model.ErrPairingRequired)
	assert.Equal(t, model.StateAwaitingPairing, state)

	rec, _ := tr.Get("10.0.0.5")
	assert.Equal(t, model.StateAwaitingPairing, rec.State)
	assert.False(t, rec.InFlight)
	conf.AssertExpectations(t)
}

func TestController_GivesUpAfterMaxAttempts(t *testing.T) {
	c, tr, conf := newController(t, WithMaxAttempts(2))
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("req-1", nil)
	conf.On("NotifyErrors", "req-1", retryMessage).Return().Once()
	conf.On("NotifyErrors", "req-1", mock.MatchedBy(func(msg string) bool { return msg != retryMessage })).Return().Once()
	conf.On("RequestDone", "req-1").Return().Once()

	tr.TryBegin("10.0.0.5")
	_, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error {
		return model.ErrPairingRequired
	})
	require.NoError(t, err)

	_, err = c.Confirm(context.Background(), "10.0.0.5")
	require.ErrorIs(t, err, model.ErrPairingRequired)

	state, err := c.Confirm(context.Background(), "10.0.0.5")
	assert.ErrorIs(t, err, model.ErrPairingAbandoned)
	assert.ErrorIs(t, err, model.ErrPairingRequired)
	assert.Equal(t, model.StateUnregistered, state)

	assert.Equal(t, model.Proceed, tr.TryBegin("10.0.0.5"), "abandoned identity must be retryable")
	conf.AssertExpectations(t)
}

func TestController_NotifyDuplicate(t *testing.T) {
	c, tr, conf := newController(t)
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("req-1", nil).Once()
	conf.On("NotifyErrors", "req-1", retryMessage).Return().Once()

	assert.False(t, c.NotifyDuplicate("10.0.0.5"))

	tr.TryBegin("10.0.0.5")
	_, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.True(t, c.NotifyDuplicate("10.0.0.5"))
	conf.AssertExpectations(t)
}

func TestController_Cancel(t *testing.T) {
	c, tr, conf := newController(t)
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("req-1", nil)
	conf.On("RequestDone", "req-1").Return().Once()

	tr.TryBegin("10.0.0.5")
	_, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.True(t, c.Cancel("10.0.0.5"))
	assert.False(t, c.Cancel("10.0.0.5"))

	_, err = c.Confirm(context.Background(), "10.0.0.5")
	assert.ErrorIs(t, err, model.ErrNoPairingFlow)
	conf.AssertExpectations(t)
}

func TestController_CancelDuringAttempt(t *testing.T) {
	c, tr, conf := newController(t)
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("req-1", nil)
	conf.On("RequestDone", "req-1").Return().Once()

	tr.TryBegin("10.0.0.5")
	_, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error {
		// Device removed while connecting.
		c.Cancel("10.0.0.5")
		tr.Remove("10.0.0.5")
		return nil
	})
	require.NoError(t, err)

	state, err := c.Confirm(context.Background(), "10.0.0.5")
	assert.ErrorIs(t, err, model.ErrNoPairingFlow)
	assert.Equal(t, model.StateUnregistered, state)
	_, tracked := tr.Get("10.0.0.5")
	assert.False(t, tracked)
	conf.AssertNotCalled(t, "NotifyErrors", mock.Anything, mock.Anything)
	conf.AssertExpectations(t)
}

func TestController_RequestConfigFailure(t *testing.T) {
	c, tr, conf := newController(t)
	conf.On("RequestConfig", hueRequest, mock.Anything).Return("", errors.New("configurator offline"))

	tr.TryBegin("10.0.0.5")
	_, err := c.Begin(context.Background(), "10.0.0.5", hueRequest, func(context.Context) error { return nil })

	assert.Error(t, err)
	_, tracked := tr.Get("10.0.0.5")
	assert.False(t, tracked)
}
