package http

import (
	"bytes"
	"context"
	"device-adapter-core/internal/domain/model"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeCamera struct {
	name  string
	image []byte
}

func (c *fakeCamera) Name() string                     { return c.name }
func (c *fakeCamera) Image(ctx context.Context) []byte { return c.image }

type MockBridges struct {
	mock.Mock
}

func (m *MockBridges) Setup(ctx context.Context, cfg model.BridgeConfig) (model.SetupOutcome, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(model.SetupOutcome), args.Error(1)
}

func (m *MockBridges) Deregister(ctx context.Context, host string) error {
	return m.Called(ctx, host).Error(0)
}

func (m *MockBridges) Registrations() []model.RegistrationRecord {
	return m.Called().Get(0).([]model.RegistrationRecord)
}

func (m *MockBridges) Bridges() []string {
	return m.Called().Get(0).([]string)
}

type MockConfigurator struct {
	mock.Mock
}

func (m *MockConfigurator) Pending() []model.PendingRequest {
	return m.Called().Get(0).([]model.PendingRequest)
}

func (m *MockConfigurator) Submit(ctx context.Context, requestID string, data map[string]string) error {
	return m.Called(ctx, requestID, data).Error(0)
}

type MockServices struct {
	mock.Mock
}

func (m *MockServices) Call(ctx context.Context, call model.ServiceCall) error {
	return m.Called(ctx, call).Error(0)
}

func (m *MockServices) Describe() map[string]map[string]model.ServiceDescription {
	return m.Called().Get(0).(map[string]map[string]model.ServiceDescription)
}

type fixture struct {
	bridges      *MockBridges
	configurator *MockConfigurator
	services     *MockServices
	srv          *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		bridges:      new(MockBridges),
		configurator: new(MockConfigurator),
		services:     new(MockServices),
	}
	s := NewServer(Dependencies{
		Cameras: []Camera{
			&fakeCamera{name: "porch", image: []byte("\xff\xd8\xff\xe0jpeg")},
			&fakeCamera{name: "garage"},
		},
		Bridges:      f.bridges,
		Configurator: f.configurator,
		Services:     f.services,
	}, zerolog.Nop())
	f.srv = httptest.NewServer(s.Routes())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_CameraProxy(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/camera_proxy/porch", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	resp = f.do(t, http.MethodGet, "/api/camera_proxy/garage", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/camera_proxy/attic", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/cameras", nil)
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	assert.Equal(t, []string{"garage", "porch"}, names)
}

func TestServer_ServiceCall(t *testing.T) {
	f := newFixture(t)
	f.services.On("Call", mock.Anything, model.ServiceCall{
		Domain:  "hue",
		Service: "activate_scene",
		Data:    map[string]interface{}{"group_name": "Living room", "scene_name": "Relax"},
	}).Return(nil)
	f.services.On("Call", mock.Anything, mock.MatchedBy(func(c model.ServiceCall) bool {
		return c.Service == "missing"
	})).Return(fmt.Errorf("%w: hue.missing", model.ErrServiceNotFound))
	f.services.On("Call", mock.Anything, mock.MatchedBy(func(c model.ServiceCall) bool {
		return c.Service == "activate_scene" && len(c.Data) == 0
	})).Return(fmt.Errorf("%w: group_name required", model.ErrInvalidServiceCall))

	resp := f.do(t, http.MethodPost, "/api/services/hue/activate_scene",
		map[string]string{"group_name": "Living room", "scene_name": "Relax"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/services/hue/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/services/hue/activate_scene", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Configurator(t *testing.T) {
	f := newFixture(t)
	f.configurator.On("Pending").Return([]model.PendingRequest{{ID: "req-1", Request: model.ConfigRequest{Title: "Philips Hue"}}})
	f.configurator.On("Submit", mock.Anything, "req-1", map[string]string{}).Return(nil)
	f.configurator.On("Submit", mock.Anything, "nope", map[string]string{}).Return(model.ErrRequestNotFound)

	resp := f.do(t, http.MethodGet, "/api/configurator", nil)
	var pending []model.PendingRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "Philips Hue", pending[0].Request.Title)

	resp = f.do(t, http.MethodPost, "/api/configurator/req-1", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/configurator/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Bridges(t *testing.T) {
	f := newFixture(t)
	f.bridges.On("Setup", mock.Anything, model.BridgeConfig{Host: "10.0.0.5"}).Return(model.OutcomeAwaitingPairing, nil)
	f.bridges.On("Setup", mock.Anything, model.BridgeConfig{}).Return(model.OutcomeFailed, model.ErrNoHost)
	f.bridges.On("Registrations").Return([]model.RegistrationRecord{{Identity: "10.0.0.5", State: model.StateAwaitingPairing}})
	f.bridges.On("Bridges").Return([]string{})
	f.bridges.On("Deregister", mock.Anything, "10.0.0.5").Return(nil)
	f.bridges.On("Deregister", mock.Anything, "10.0.0.9").Return(model.ErrBridgeNotFound)

	resp := f.do(t, http.MethodPost, "/api/bridges", setupRequest{Host: "10.0.0.5"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var out setupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, model.OutcomeAwaitingPairing, out.Outcome)

	resp = f.do(t, http.MethodPost, "/api/bridges", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/registrations", nil)
	var records []model.RegistrationRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.Equal(t, model.StateAwaitingPairing, records[0].State)

	resp = f.do(t, http.MethodDelete, "/api/registrations/10.0.0.5", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/api/registrations/10.0.0.9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_InvalidBody(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/bridges", bytes.NewBufferString("{"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
