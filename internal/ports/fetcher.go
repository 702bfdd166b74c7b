package ports

import (
	"context"
	"device-adapter-core/internal/domain/model"
)

// TemplateRenderer resolves a still image URL expression into a concrete URL.
type TemplateRenderer interface {
	Render(expr string) (string, error)
}

// ImageFetcher performs one blocking image GET for a camera.
type ImageFetcher interface {
	Fetch(ctx context.Context, target model.TargetDescriptor, url string) (*model.FetchResult, error)
}
