package services

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Call(t *testing.T) {
	r, err := NewRegistry(zerolog.Nop())
	require.NoError(t, err)

	var got model.ServiceCall
	require.NoError(t, r.Register("hue", "activate_scene", func(ctx context.Context, call model.ServiceCall) error {
		got = call
		return nil
	}))

	err = r.Call(context.Background(), model.ServiceCall{Domain: "hue", Service: "activate_scene"})
	require.NoError(t, err)
	assert.Equal(t, "hue", got.Domain)
	assert.NotNil(t, got.Data)

	err = r.Call(context.Background(), model.ServiceCall{Domain: "hue", Service: "missing"})
	assert.ErrorIs(t, err, model.ErrServiceNotFound)
}

func TestRegistry_HandlerErrorPropagates(t *testing.T) {
	r, _ := NewRegistry(zerolog.Nop())
	boom := errors.New("boom")
	r.Register("hue", "activate_scene", func(ctx context.Context, call model.ServiceCall) error { return boom })

	assert.ErrorIs(t, r.Call(context.Background(), model.ServiceCall{Domain: "hue", Service: "activate_scene"}), boom)
}

func TestRegistry_Describe(t *testing.T) {
	r, _ := NewRegistry(zerolog.Nop())
	assert.Empty(t, r.Describe())

	r.Register("hue", "activate_scene", func(ctx context.Context, call model.ServiceCall) error { return nil })
	desc := r.Describe()
	scene := desc["hue"]["activate_scene"]
	assert.Equal(t, "Activate a hue scene stored in the hue hub.", scene.Description)
	assert.Equal(t, "Energize", scene.Fields["scene_name"].Example)
	assert.Equal(t, []string{"hue.activate_scene"}, r.Names())
}

func TestRegistry_RejectsIncomplete(t *testing.T) {
	r, _ := NewRegistry(zerolog.Nop())
	assert.Error(t, r.Register("", "x", func(context.Context, model.ServiceCall) error { return nil }))
	assert.Error(t, r.Register("hue", "x", nil))
}
