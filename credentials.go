package notifyws

import (
	"context"
	"sync"
)

// Session keys read by SessionCredentialProvider.
const (
	SessionKeyAccessToken = "access_token"
	SessionKeyUserID      = "user_id"
)

type (
	// Credential is a snapshot of what the endpoint needs to authenticate a connection.
	Credential struct {
		AccessToken string
		UserID      string
	}

	// CredentialProvider is consulted on every connection attempt. ok is false when there is no
	// signed in user, in which case the attempt is skipped.
	CredentialProvider interface {
		Credential(ctx context.Context) (cred Credential, ok bool)
	}

	// CredentialProviderFunc adapts a plain function to CredentialProvider.
	CredentialProviderFunc func(ctx context.Context) (Credential, bool)

	// SessionStore is the key-value store where the rest of the application keeps the session.
	SessionStore interface {
		Get(key string) (string, bool)
		Set(key, value string)
		Clear()
	}

	// SessionCredentialProvider reads the credential from a SessionStore each time it is asked,
	// so a token refreshed elsewhere is picked up by the next attempt.
	SessionCredentialProvider struct {
		store SessionStore
	}

	// StaticCredentials always returns the same credential.
	StaticCredentials Credential

	// MemorySessionStore is a SessionStore kept in process memory.
	MemorySessionStore struct {
		mu     sync.RWMutex
		values map[string]string
	}
)

// Valid reports whether both the token and the user are present.
func (c Credential) Valid() bool {
	return c.AccessToken != "" && c.UserID != ""
}

func (f CredentialProviderFunc) Credential(ctx context.Context) (Credential, bool) {
	return f(ctx)
}

func NewSessionCredentialProvider(store SessionStore) SessionCredentialProvider {
	return SessionCredentialProvider{store: store}
}

func (p SessionCredentialProvider) Credential(_ context.Context) (Credential, bool) {
	token, _ := p.store.Get(SessionKeyAccessToken)
	user, _ := p.store.Get(SessionKeyUserID)

	cred := Credential{AccessToken: token, UserID: user}
	return cred, cred.Valid()
}

func (s StaticCredentials) Credential(_ context.Context) (Credential, bool) {
	cred := Credential(s)
	return cred, cred.Valid()
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{values: make(map[string]string)}
}

func (s *MemorySessionStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

func (s *MemorySessionStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

func (s *MemorySessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string]string)
}
