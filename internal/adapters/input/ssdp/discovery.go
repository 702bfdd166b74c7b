package ssdp

import (
	"bufio"
	"bytes"
	"context"
	"device-adapter-core/internal/domain/model"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAddress = "239.255.255.250:1900"
	DefaultWait    = 3 * time.Second

	// Hue bridges announce themselves with "IpBridge/<version>" in SERVER.
	bridgeServerToken = "IpBridge"
	searchTarget      = "urn:schemas-upnp-org:device:basic:1"
)

// BridgeSetup receives every bridge found on the network.
type BridgeSetup interface {
	Setup(ctx context.Context, cfg model.BridgeConfig) (model.SetupOutcome, error)
}

// Discoverer finds Hue bridges with an SSDP M-SEARCH.
type Discoverer struct {
	address  string
	wait     time.Duration
	filename string
	logger   zerolog.Logger
}

type Option func(*Discoverer)

// WithAddress sends the search to addr instead of the SSDP multicast group.
func WithAddress(addr string) Option {
	return func(d *Discoverer) { d.address = addr }
}

// WithWait bounds how long responses are collected.
func WithWait(wait time.Duration) Option {
	return func(d *Discoverer) { d.wait = wait }
}

// NewDiscoverer creates a Discoverer. Found bridges are set up with the
// credential file filename.
func NewDiscoverer(filename string, logger zerolog.Logger, opts ...Option) *Discoverer {
	d := &Discoverer{
		address:  DefaultAddress,
		wait:     DefaultWait,
		filename: filename,
		logger:   logger.With().Str("component", "ssdp").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run searches once and sets up every bridge found, concurrently. Setup
// failures are logged per bridge.
func (d *Discoverer) Run(ctx context.Context, bridges BridgeSetup) error {
	hosts, err := d.Search(ctx)
	if err != nil {
		return err
	}
	d.logger.Info().Strs("hosts", hosts).Msg("Hue bridge discovery finished")

	g, gctx := errgroup.WithContext(ctx)
	for _, host := range hosts {
		g.Go(func() error {
			outcome, err := bridges.Setup(gctx, model.BridgeConfig{Host: host, Filename: d.filename})
			if err != nil {
				d.logger.Error().Err(err).Str("host", host).Str("outcome", string(outcome)).Msg("Discovered bridge setup failed")
				return nil
			}
			d.logger.Info().Str("host", host).Str("outcome", string(outcome)).Msg("Discovered bridge set up")
			return nil
		})
	}
	return g.Wait()
}

// Search sends one M-SEARCH and returns the distinct bridge hosts that
// answer before the wait expires.
func (d *Discoverer) Search(ctx context.Context) ([]string, error) {
	raddr, err := net.ResolveUDPAddr("udp4", d.address)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", d.address, err)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("opening search socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(searchRequest(d.address, d.wait), raddr); err != nil {
		return nil, fmt.Errorf("sending M-SEARCH: %w", err)
	}

	deadline := time.Now().Add(d.wait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	seen := make(map[string]bool)
	var hosts []string
	buf := make([]byte, 2048)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				break
			}
			return hosts, fmt.Errorf("reading SSDP response: %w", err)
		}
		host, ok := bridgeHost(buf[:n], src)
		if !ok {
			continue
		}
		if !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
			d.logger.Debug().Str("host", host).Msg("Found Hue bridge")
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return hosts, ctx.Err()
	}
	return hosts, nil
}

func searchRequest(address string, wait time.Duration) []byte {
	mx := int(wait / time.Second)
	if mx < 1 {
		mx = 1
	}
	return []byte(fmt.Sprintf("M-SEARCH * HTTP/1.1\r\n"+
		"HOST: %s\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST: %s\r\n\r\n", address, mx, searchTarget))
}

// bridgeHost extracts the bridge address from an M-SEARCH response. The
// LOCATION host wins over the datagram source.
func bridgeHost(payload []byte, src *net.UDPAddr) (string, bool) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(payload)), nil)
	if err != nil {
		return "", false
	}
	resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Server"), bridgeServerToken) {
		return "", false
	}
	if loc, err := url.Parse(resp.Header.Get("Location")); err == nil && loc.Hostname() != "" {
		return loc.Hostname(), true
	}
	if src == nil {
		return "", false
	}
	return src.IP.String(), true
}
