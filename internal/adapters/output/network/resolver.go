package network

import (
	"context"
	"device-adapter-core/internal/ports"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var _ ports.HostResolver = (*Resolver)(nil)

type lookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Resolver turns the host a bridge was configured with into its identity:
// the resolved IP address, IPv4 preferred, plus the port when one was given.
// Two names for the same address share an identity.
type Resolver struct {
	lookup lookupFunc
}

func NewResolver() *Resolver {
	return &Resolver{lookup: net.DefaultResolver.LookupIPAddr}
}

func (r *Resolver) Normalize(ctx context.Context, host string) (string, error) {
	name, port := splitHost(host)
	if name == "" {
		return "", fmt.Errorf("empty host %q", host)
	}

	ip := net.ParseIP(name)
	if ip == nil {
		addrs, err := r.lookup(ctx, name)
		if err != nil {
			return "", err
		}
		if len(addrs) == 0 {
			return "", fmt.Errorf("no addresses for %s", name)
		}
		ip = addrs[0].IP
		for _, a := range addrs {
			if v4 := a.IP.To4(); v4 != nil {
				ip = v4
				break
			}
		}
	}

	if port != "" {
		return net.JoinHostPort(ip.String(), port), nil
	}
	return ip.String(), nil
}

// splitHost accepts a bare host, host:port or a URL.
func splitHost(host string) (string, string) {
	host = strings.TrimSpace(host)
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			return u.Hostname(), u.Port()
		}
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		return h, p
	}
	return strings.Trim(host, "[]"), ""
}
