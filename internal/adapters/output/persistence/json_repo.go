package persistence

import (
	"bytes"
	"context"
	"device-adapter-core/internal/ports"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var _ ports.CredentialStore = (*JSONCredentialStore)(nil)

// JSONCredentialStore keeps bridge usernames in a phue-style file:
//
//	{"192.168.1.2": {"username": "..."}}
type JSONCredentialStore struct {
	filepath string
	mu       sync.RWMutex
}

type credential struct {
	Username string `json:"username"`
}

func NewJSONCredentialStore(filepath string) *JSONCredentialStore {
	return &JSONCredentialStore{filepath: filepath}
}

// NewOpener returns a ports.CredentialStoreOpener resolving relative file
// names against dir. Stores are shared per path.
func NewOpener(dir string) ports.CredentialStoreOpener {
	var mu sync.Mutex
	stores := make(map[string]*JSONCredentialStore)
	return func(filename string) ports.CredentialStore {
		path := filename
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, filename)
		}
		mu.Lock()
		defer mu.Unlock()
		if s, ok := stores[path]; ok {
			return s
		}
		s := NewJSONCredentialStore(path)
		stores[path] = s
		return s
	}
}

// FirstHost returns the first host in document order. A missing, empty or
// malformed file yields "" and no error.
func (r *JSONCredentialStore) FirstHost(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	if !json.Valid(data) {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return "", nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", nil
	}
	tok, err = dec.Token()
	if err != nil {
		return "", nil
	}
	host, ok := tok.(string)
	if !ok {
		return "", nil
	}
	return host, nil
}

func (r *JSONCredentialStore) Username(ctx context.Context, host string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	creds, err := r.load()
	if err != nil {
		return "", err
	}
	return creds[host].Username, nil
}

func (r *JSONCredentialStore) SaveUsername(ctx context.Context, host, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	creds, err := r.load()
	if err != nil {
		// Unreadable content is replaced rather than blocking registration.
		creds = make(map[string]credential)
	}
	creds[host] = credential{Username: username}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.filepath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.filepath, data, 0o600)
}

func (r *JSONCredentialStore) load() (map[string]credential, error) {
	creds := make(map[string]credential)
	data, err := os.ReadFile(r.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return creds, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return creds, nil
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("malformed credential file %s: %w", r.filepath, err)
	}
	return creds, nil
}
