package configurator

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/ports"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ ports.Configurator = (*Memory)(nil)

// Memory keeps pending configuration requests until a user submits them
// through the HTTP API.
type Memory struct {
	mu       sync.Mutex
	requests map[string]*entry
	now      func() time.Time
	logger   zerolog.Logger
}

type entry struct {
	pending  model.PendingRequest
	callback ports.ConfigCallback
}

func NewMemory(logger zerolog.Logger) *Memory {
	return &Memory{
		requests: make(map[string]*entry),
		now:      time.Now,
		logger:   logger.With().Str("component", "configurator").Logger(),
	}
}

func (m *Memory) RequestConfig(req model.ConfigRequest, callback ports.ConfigCallback) (string, error) {
	if callback == nil {
		return "", fmt.Errorf("configuration request %q has no callback", req.Title)
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.requests[id] = &entry{
		pending:  model.PendingRequest{ID: id, Request: req, CreatedAt: m.now()},
		callback: callback,
	}
	m.mu.Unlock()

	m.logger.Info().Str("request_id", id).Str("title", req.Title).Msg("Configuration requested")
	return id, nil
}

func (m *Memory) NotifyErrors(requestID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.requests[requestID]; ok {
		e.pending.Errors = message
	}
}

func (m *Memory) RequestDone(requestID string) {
	m.mu.Lock()
	delete(m.requests, requestID)
	m.mu.Unlock()
	m.logger.Debug().Str("request_id", requestID).Msg("Configuration request done")
}

// Submit runs the callback of a pending request. The request stays pending
// until the owner calls RequestDone.
func (m *Memory) Submit(ctx context.Context, requestID string, data map[string]string) error {
	m.mu.Lock()
	e, ok := m.requests[requestID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrRequestNotFound, requestID)
	}
	if data == nil {
		data = map[string]string{}
	}
	e.callback(ctx, data)
	return nil
}

// Pending lists open requests, oldest first.
func (m *Memory) Pending() []model.PendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PendingRequest, 0, len(m.requests))
	for _, e := range m.requests {
		out = append(out, e.pending)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) Get(requestID string) (model.PendingRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.requests[requestID]
	if !ok {
		return model.PendingRequest{}, false
	}
	return e.pending, true
}
