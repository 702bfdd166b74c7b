package hue

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/amimof/huego"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu    sync.Mutex
	users map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]string)}
}

func (m *memoryStore) FirstHost(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for host := range m.users {
		return host, nil
	}
	return "", nil
}

func (m *memoryStore) Username(ctx context.Context, host string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[host], nil
}

func (m *memoryStore) SaveUsername(ctx context.Context, host, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[host] = username
	return nil
}

// fakeBridge emulates the parts of the Hue REST API the connector uses.
type fakeBridge struct {
	mu          sync.Mutex
	linkPressed bool
	users       map[string]bool
	recalled    []string
}

func apiError(w http.ResponseWriter, typ int, desc string) {
	json.NewEncoder(w).Encode([]map[string]interface{}{
		{"error": map[string]interface{}{"type": typ, "address": "/", "description": desc}},
	})
}

func (b *fakeBridge) authorized(w http.ResponseWriter, r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.users[chi.URLParam(r, "user")] {
		apiError(w, 1, "unauthorized user")
		return false
	}
	return true
}

func (b *fakeBridge) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Post("/api", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.linkPressed {
			apiError(w, 101, "link button not pressed")
			return
		}
		b.users["newuser"] = true
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"success": map[string]string{"username": "newuser"}},
		})
	})
	r.Get("/api/{user}/groups", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		w.Write([]byte(`{
			"1": {"name": "Living room", "lights": ["1", "2"], "type": "Room"},
			"2": {"name": "Kitchen", "lights": ["3"], "type": "Room"}
		}`))
	})
	r.Get("/api/{user}/scenes", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		w.Write([]byte(`{
			"relax-lr": {"name": "Relax", "lights": ["2", "1"], "type": "LightScene"},
			"relax-k": {"name": "Relax", "lights": ["3"], "type": "LightScene"},
			"bright": {"name": "Bright", "lights": ["1"], "type": "LightScene"}
		}`))
	})
	r.Put("/api/{user}/groups/{id}/action", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		var body struct {
			Scene string `json:"scene"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.recalled = append(b.recalled, chi.URLParam(r, "id")+"/"+body.Scene)
		b.mu.Unlock()
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"success": map[string]string{"/groups/" + chi.URLParam(r, "id") + "/action/scene": body.Scene}},
		})
	})
	return r
}

func newFakeBridge(t *testing.T) (*fakeBridge, *httptest.Server) {
	b := &fakeBridge{users: map[string]bool{"known": true}}
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)
	return b, srv
}

func TestConnector_StoredUsername(t *testing.T) {
	_, srv := newFakeBridge(t)
	store := newMemoryStore()
	store.SaveUsername(context.Background(), srv.URL, "known")

	c := NewConnector("", zerolog.Nop())
	sess, err := c.Connect(context.Background(), srv.URL, store)

	require.NoError(t, err)
	assert.Equal(t, srv.URL, sess.Host())
}

func TestConnector_LinkButtonNotPressed(t *testing.T) {
	_, srv := newFakeBridge(t)
	store := newMemoryStore()

	c := NewConnector("", zerolog.Nop())
	_, err := c.Connect(context.Background(), srv.URL, store)

	assert.ErrorIs(t, err, model.ErrPairingRequired)
	username, _ := store.Username(context.Background(), srv.URL)
	assert.Empty(t, username)
}

func TestConnector_PairsWhenLinkPressed(t *testing.T) {
	b, srv := newFakeBridge(t)
	store := newMemoryStore()
	c := NewConnector("", zerolog.Nop())

	_, err := c.Connect(context.Background(), srv.URL, store)
	require.ErrorIs(t, err, model.ErrPairingRequired)

	b.mu.Lock()
	b.linkPressed = true
	b.mu.Unlock()

	_, err = c.Connect(context.Background(), srv.URL, store)
	require.NoError(t, err)
	username, _ := store.Username(context.Background(), srv.URL)
	assert.Equal(t, "newuser", username)
}

func TestConnector_RevokedUsername(t *testing.T) {
	_, srv := newFakeBridge(t)
	store := newMemoryStore()
	store.SaveUsername(context.Background(), srv.URL, "revoked")

	c := NewConnector("", zerolog.Nop())
	_, err := c.Connect(context.Background(), srv.URL, store)

	assert.ErrorIs(t, err, model.ErrPairingRequired)
}

func TestConnector_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	c := NewConnector("", zerolog.Nop())
	_, err := c.Connect(context.Background(), host, newMemoryStore())

	assert.ErrorIs(t, err, model.ErrConnectionRefused)
}

func TestSession_RunScene(t *testing.T) {
	b, srv := newFakeBridge(t)
	store := newMemoryStore()
	store.SaveUsername(context.Background(), srv.URL, "known")
	sess, err := NewConnector("", zerolog.Nop()).Connect(context.Background(), srv.URL, store)
	require.NoError(t, err)

	require.NoError(t, sess.RunScene(context.Background(), "Living room", "Relax"))
	require.NoError(t, sess.RunScene(context.Background(), "Kitchen", "Relax"))
	require.NoError(t, sess.RunScene(context.Background(), "Kitchen", "Bright"))

	assert.Equal(t, []string{"1/relax-lr", "2/relax-k", "2/bright"}, b.recalled)

	assert.ErrorIs(t, sess.RunScene(context.Background(), "Garage", "Relax"), model.ErrGroupNotFound)
	assert.ErrorIs(t, sess.RunScene(context.Background(), "Living room", "Party"), model.ErrSceneNotFound)
}

func TestPickScene(t *testing.T) {
	group := &huego.Group{ID: 4, Name: "Office", Lights: []string{"7", "8"}}
	scenes := []huego.Scene{
		{ID: "a", Name: "Focus", Lights: []string{"1"}},
		{ID: "b", Name: "Focus", Group: "4"},
		{ID: "c", Name: "Focus", Lights: []string{"8", "7"}},
	}
	assert.Equal(t, "b", pickScene(scenes, group, "Focus").ID)
	assert.Equal(t, "c", pickScene(scenes[2:], group, "Focus").ID)
	assert.Nil(t, pickScene(scenes[:1:1], &huego.Group{ID: 1}, "Relax"))
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&huego.APIError{Type: 101, Description: "link button not pressed"}), model.ErrPairingRequired)
	assert.ErrorIs(t, classify(&huego.APIError{Type: 1, Description: "unauthorized user"}), model.ErrPairingRequired)
	assert.NotErrorIs(t, classify(&huego.APIError{Type: 7}), model.ErrPairingRequired)
}
