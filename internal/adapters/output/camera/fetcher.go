package camera

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/icholy/digest"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single image request.
const DefaultTimeout = 10 * time.Second

// maxImageSize is the largest image accepted. Larger bodies are rejected
// rather than truncated.
const maxImageSize = 16 << 20

// Fetcher downloads still images over HTTP with optional basic or digest auth.
type Fetcher struct {
	timeout   time.Duration
	transport http.RoundTripper
	maxSize   int64
	logger    zerolog.Logger
}

func NewFetcher(timeout time.Duration, logger zerolog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		timeout:   timeout,
		transport: http.DefaultTransport,
		maxSize:   maxImageSize,
		logger:    logger.With().Str("component", "camera_fetcher").Logger(),
	}
}

// Fetch performs one GET against url using the target's credentials.
func (f *Fetcher) Fetch(ctx context.Context, target model.TargetDescriptor, url string) (*model.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %w", model.ErrTransport, url, err)
	}

	client := &http.Client{Transport: f.transport}
	switch target.EffectiveAuth() {
	case model.AuthDigest:
		client.Transport = &digest.Transport{
			Username:  target.Username,
			Password:  target.Password,
			Transport: f.transport,
		}
	case model.AuthBasic:
		req.SetBasicAuth(target.Username, target.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: camera returned %d", model.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading image: %w", model.ErrTransport, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: image larger than %d bytes", model.ErrTransport, f.maxSize)
	}

	f.logger.Debug().
		Str("camera", target.Name).
		Int("content_size", len(body)).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("Fetched camera image")

	return &model.FetchResult{
		Key:         url,
		Payload:     body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
