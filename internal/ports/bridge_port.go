package ports

import "context"

// BridgeConnector opens an authorized session with a bridge. Failures are
// classified as model.ErrConnectionRefused or model.ErrPairingRequired when
// the cause is known.
type BridgeConnector interface {
	Connect(ctx context.Context, host string, creds CredentialStore) (BridgeSession, error)
}

type BridgeSession interface {
	Host() string
	RunScene(ctx context.Context, groupName, sceneName string) error
}

// CredentialStore persists bridge usernames keyed by host.
type CredentialStore interface {
	FirstHost(ctx context.Context) (string, error)
	Username(ctx context.Context, host string) (string, error)
	SaveUsername(ctx context.Context, host, username string) error
}

// CredentialStoreOpener returns the store backing a credential file name.
type CredentialStoreOpener func(filename string) CredentialStore

// HostResolver normalizes a DNS name or address into a device identity.
type HostResolver interface {
	Normalize(ctx context.Context, host string) (string, error)
}
