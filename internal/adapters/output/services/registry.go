package services

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/ports"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed services.yaml
var builtinDescriptions []byte

var _ ports.ServiceRegistry = (*Registry)(nil)

// Registry maps domain.service names to handlers. Registering a name twice
// replaces the previous handler.
type Registry struct {
	mu           sync.RWMutex
	handlers     map[string]ports.ServiceHandler
	descriptions map[string]map[string]model.ServiceDescription
	logger       zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) (*Registry, error) {
	descriptions, err := parseDescriptions(builtinDescriptions)
	if err != nil {
		return nil, err
	}
	return &Registry{
		handlers:     make(map[string]ports.ServiceHandler),
		descriptions: descriptions,
		logger:       logger.With().Str("component", "services").Logger(),
	}, nil
}

func parseDescriptions(data []byte) (map[string]map[string]model.ServiceDescription, error) {
	out := make(map[string]map[string]model.ServiceDescription)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing service descriptions: %w", err)
	}
	return out, nil
}

func key(domain, service string) string {
	return domain + "." + service
}

func (r *Registry) Register(domain, service string, handler ports.ServiceHandler) error {
	if domain == "" || service == "" || handler == nil {
		return fmt.Errorf("%w: incomplete registration %q", model.ErrInvalidServiceCall, key(domain, service))
	}
	r.mu.Lock()
	r.handlers[key(domain, service)] = handler
	r.mu.Unlock()
	r.logger.Debug().Str("service", key(domain, service)).Msg("Service registered")
	return nil
}

// Call runs the handler registered for call.Domain and call.Service.
func (r *Registry) Call(ctx context.Context, call model.ServiceCall) error {
	r.mu.RLock()
	handler, ok := r.handlers[key(call.Domain, call.Service)]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrServiceNotFound, key(call.Domain, call.Service))
	}
	if call.Data == nil {
		call.Data = map[string]interface{}{}
	}
	return handler(ctx, call)
}

// Describe returns the descriptions of registered services, keyed by domain
// then service name.
func (r *Registry) Describe() map[string]map[string]model.ServiceDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]model.ServiceDescription)
	for _, name := range r.namesLocked() {
		domain, service := splitKey(name)
		if out[domain] == nil {
			out[domain] = make(map[string]model.ServiceDescription)
		}
		out[domain][service] = r.descriptions[domain][service]
	}
	return out
}

// Names lists registered services as domain.service, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func splitKey(name string) (string, string) {
	domain, service, _ := strings.Cut(name, ".")
	return domain, service
}
