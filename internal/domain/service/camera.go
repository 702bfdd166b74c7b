package service

import (
	"context"
	"device-adapter-core/internal/domain/cache"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// CameraService serves still images for one camera. It never returns an
// error: failures degrade to the last good image or to nil.
type CameraService struct {
	target   model.TargetDescriptor
	renderer ports.TemplateRenderer
	fetcher  ports.ImageFetcher
	cache    *cache.Dedup
	recorder ports.Recorder
	logger   zerolog.Logger

	// Concurrent requests share one fetch so the cache keeps a single writer.
	group singleflight.Group
}

func NewCameraService(target model.TargetDescriptor, renderer ports.TemplateRenderer, fetcher ports.ImageFetcher, recorder ports.Recorder, logger zerolog.Logger) *CameraService {
	if target.Name == "" {
		target.Name = model.DefaultCameraName
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &CameraService{
		target:   target,
		renderer: renderer,
		fetcher:  fetcher,
		cache:    cache.NewDedup(),
		recorder: recorder,
		logger:   logger.With().Str("component", "camera").Str("camera", target.Name).Logger(),
	}
}

func (s *CameraService) Name() string {
	return s.target.Name
}

// Image returns the current still image. The shared fetch is detached from
// any single caller, so one caller going away does not fail the others; the
// fetcher's own timeout bounds it. A caller whose ctx ends first gets nil.
func (s *CameraService) Image(ctx context.Context) []byte {
	ch := s.group.DoChan("image", func() (interface{}, error) {
		return s.image(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		payload, _ := res.Val.([]byte)
		return payload
	case <-ctx.Done():
		return nil
	}
}

func (s *CameraService) image(ctx context.Context) []byte {
	url, err := s.renderer.Render(s.target.StillImageURL)
	if err != nil {
		s.logger.Error().Err(err).Str("template", s.target.StillImageURL).Msg("Error parsing template")
		s.recorder.CameraFetch(s.target.Name, "template_error")
		return s.cache.Get()
	}

	if !s.cache.ShouldRefetch(s.target, url) {
		s.recorder.CameraFetch(s.target.Name, "cached")
		return s.cache.Get()
	}

	res, err := s.fetcher.Fetch(ctx, s.target, url)
	if err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("Error getting camera image")
		s.recorder.CameraFetch(s.target.Name, "error")
		return nil
	}

	s.cache.Update(res.Payload, url)
	s.recorder.CameraFetch(s.target.Name, "fetched")
	return res.Payload
}

// Cached returns the last good fetch without touching the network.
func (s *CameraService) Cached() model.CachedResult {
	return s.cache.Snapshot()
}
