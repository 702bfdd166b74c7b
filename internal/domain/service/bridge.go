package service

import (
	"context"
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/domain/pairing"
	"device-adapter-core/internal/domain/registration"
	"device-adapter-core/internal/ports"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	HueDomain          = "hue"
	ServiceHueScene    = "activate_scene"
	attrGroupName      = "group_name"
	attrSceneName      = "scene_name"
	hueConfigTitle     = "Philips Hue"
	hueSubmitCaption   = "I have pressed the button"
	hueEntityPicture   = "/static/images/logo_philips_hue.png"
	hueDescriptionPic  = "/static/images/config_philips_hue.jpg"
	hueDescriptionText = "Press the button on the bridge to register Philips Hue with Home Assistant."
)

var hueConfigRequest = model.ConfigRequest{
	Title:            hueConfigTitle,
	Description:      hueDescriptionText,
	EntityPicture:    hueEntityPicture,
	DescriptionImage: hueDescriptionPic,
	SubmitCaption:    hueSubmitCaption,
}

type BridgeDependencies struct {
	Connector ports.BridgeConnector
	Resolver  ports.HostResolver
	OpenStore ports.CredentialStoreOpener
	Tracker   *registration.Tracker
	Pairing   *pairing.Controller
	Services  ports.ServiceRegistry
	Recorder  ports.Recorder
}

// BridgeService sets up Hue bridges. Duplicate setups for one physical
// bridge are rejected through the registration tracker, and unpaired bridges
// go through the pairing controller.
type BridgeService struct {
	connector ports.BridgeConnector
	resolver  ports.HostResolver
	openStore ports.CredentialStoreOpener
	tracker   *registration.Tracker
	pairing   *pairing.Controller
	services  ports.ServiceRegistry
	recorder  ports.Recorder
	validate  *validator.Validate
	logger    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]ports.BridgeSession
	order    []string // identities by activation, most recent last
}

func NewBridgeService(deps BridgeDependencies, logger zerolog.Logger) *BridgeService {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &BridgeService{
		connector: deps.Connector,
		resolver:  deps.Resolver,
		openStore: deps.OpenStore,
		tracker:   deps.Tracker,
		pairing:   deps.Pairing,
		services:  deps.Services,
		recorder:  recorder,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "hue").Logger(),
		sessions:  make(map[string]ports.BridgeSession),
	}
}

// Setup connects to the bridge described by cfg.
func (s *BridgeService) Setup(ctx context.Context, cfg model.BridgeConfig) (model.SetupOutcome, error) {
	outcome, err := s.setup(ctx, cfg)
	s.recorder.BridgeSetup(outcome)
	return outcome, err
}

func (s *BridgeService) setup(ctx context.Context, cfg model.BridgeConfig) (model.SetupOutcome, error) {
	filename := cfg.Filename
	if filename == "" {
		filename = model.DefaultCredentialFile
	}
	store := s.openStore(filename)

	host := cfg.Host
	if host == "" {
		found, err := store.FirstHost(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", filename).Msg("Could not read bridge credentials")
		}
		host = found
	}
	if host == "" {
		s.logger.Error().Msg("No host found in configuration")
		return model.OutcomeFailed, model.ErrNoHost
	}

	identity, err := s.resolver.Normalize(ctx, host)
	if err != nil {
		s.logger.Error().Err(err).Str("host", host).Msg("Could not resolve bridge host")
		return model.OutcomeFailed, fmt.Errorf("resolving %s: %w", host, err)
	}

	switch s.tracker.TryBegin(identity) {
	case model.AlreadyConfigured:
		s.logger.Debug().Str("identity", identity).Msg("Bridge already configured")
		return model.OutcomeAlreadyConfigured, nil
	case model.AlreadyInFlight:
		s.pairing.NotifyDuplicate(identity)
		s.logger.Debug().Str("identity", identity).Msg("Bridge setup already in progress")
		return model.OutcomeAlreadyInFlight, nil
	}

	session, err := s.connector.Connect(ctx, host, store)
	switch {
	case err == nil:
		if err := s.activate(identity, session); err != nil {
			return model.OutcomeFailed, err
		}
		s.tracker.Complete(identity)
		s.logger.Info().Str("host", host).Str("identity", identity).Msg("Connected to Hue bridge")
		return model.OutcomeRegistered, nil

	case errors.Is(err, model.ErrPairingRequired):
		s.logger.Warn().Str("host", host).Msg("Connected to Hue but not registered")
		attempt := func(ctx context.Context) error {
			session, err := s.connector.Connect(ctx, host, store)
			if err != nil {
				return err
			}
			return s.activate(identity, session)
		}
		if _, err := s.pairing.Begin(ctx, identity, hueConfigRequest, attempt); err != nil {
			return model.OutcomeFailed, err
		}
		return model.OutcomeAwaitingPairing, nil

	default:
		s.logger.Error().Err(err).Str("host", host).Msg("Error connecting to the Hue bridge")
		s.tracker.Fail(identity, err.Error())
		return model.OutcomeFailed, err
	}
}

// activate keeps the session and exposes the scene service. The most
// recently activated bridge that is still registered serves
// hue.activate_scene. Identities dropped from the tracker meanwhile, e.g. by
// Deregister, are not activated.
func (s *BridgeService) activate(identity string, session ports.BridgeSession) error {
	s.mu.Lock()
	if _, tracked := s.tracker.Get(identity); !tracked {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q was removed during setup", model.ErrBridgeNotFound, identity)
	}
	s.sessions[identity] = session
	s.order = append(without(s.order, identity), identity)
	s.mu.Unlock()

	err := s.services.Register(HueDomain, ServiceHueScene, s.handleScene)
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not register scene service")
	}
	return nil
}

func (s *BridgeService) handleScene(ctx context.Context, call model.ServiceCall) error {
	scene, err := s.sceneCall(call.Data)
	if err != nil {
		return err
	}
	session, err := s.latest()
	if err != nil {
		return err
	}
	return session.RunScene(ctx, scene.GroupName, scene.SceneName)
}

func (s *BridgeService) latest() (ports.BridgeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil, fmt.Errorf("%w: no registered bridge", model.ErrBridgeNotFound)
	}
	return s.sessions[s.order[len(s.order)-1]], nil
}

func without(ids []string, identity string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != identity {
			out = append(out, id)
		}
	}
	return out
}

func (s *BridgeService) sceneCall(data map[string]interface{}) (model.SceneCall, error) {
	group, _ := data[attrGroupName].(string)
	scene, _ := data[attrSceneName].(string)
	call := model.SceneCall{GroupName: group, SceneName: scene}
	if err := s.validate.Struct(call); err != nil {
		return call, fmt.Errorf("%w: %v", model.ErrInvalidServiceCall, err)
	}
	return call, nil
}

// ActivateScene runs a scene on a registered bridge. An empty identity
// selects the only registered bridge.
func (s *BridgeService) ActivateScene(ctx context.Context, identity, groupName, sceneName string) error {
	session, err := s.session(identity)
	if err != nil {
		return err
	}
	return session.RunScene(ctx, groupName, sceneName)
}

func (s *BridgeService) session(identity string) (ports.BridgeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if identity == "" && len(s.sessions) == 1 {
		for _, session := range s.sessions {
			return session, nil
		}
	}
	session, ok := s.sessions[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrBridgeNotFound, identity)
	}
	return session, nil
}

// Deregister forgets a bridge so it can be set up again.
func (s *BridgeService) Deregister(ctx context.Context, host string) error {
	identity, err := s.resolver.Normalize(ctx, host)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", host, err)
	}

	cancelled := s.pairing.Cancel(identity)
	removed := s.tracker.Remove(identity)

	s.mu.Lock()
	_, hadSession := s.sessions[identity]
	delete(s.sessions, identity)
	s.order = without(s.order, identity)
	s.mu.Unlock()

	if !cancelled && !removed && !hadSession {
		return fmt.Errorf("%w: %q", model.ErrBridgeNotFound, identity)
	}
	s.logger.Info().Str("identity", identity).Msg("Bridge deregistered")
	return nil
}

func (s *BridgeService) Registrations() []model.RegistrationRecord {
	return s.tracker.Snapshot()
}

// Bridges lists identities with an active session.
func (s *BridgeService) Bridges() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sessions))
	for identity := range s.sessions {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}
