package model

import "time"

type AuthScheme string

const (
	AuthNone   AuthScheme = "none"
	AuthBasic  AuthScheme = "basic"
	AuthDigest AuthScheme = "digest"
)

const DefaultCameraName = "Generic Camera"

// TargetDescriptor describes one polled camera. It is passed by value and never mutated.
type TargetDescriptor struct {
	Name          string
	StillImageURL string // Plain URL or a {{ expression }} template
	Username      string
	Password      string
	Auth          AuthScheme
	LimitRefetch  bool
}

// HasCredentials reports whether both username and password are set.
func (t TargetDescriptor) HasCredentials() bool {
	return t.Username != "" && t.Password != ""
}

// EffectiveAuth returns the scheme used for the request. Credentials without
// a scheme fall back to basic; an explicit "none" sends no credentials.
func (t TargetDescriptor) EffectiveAuth() AuthScheme {
	if !t.HasCredentials() || t.Auth == AuthNone {
		return AuthNone
	}
	if t.Auth == AuthDigest {
		return AuthDigest
	}
	return AuthBasic
}

type FetchResult struct {
	Key         string
	Payload     []byte
	ContentType string
}

type CachedResult struct {
	LastKey     string
	LastPayload []byte
	Timestamp   time.Time
}
