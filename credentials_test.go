package notifyws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionCredentialProvider(t *testing.T) {
	store := NewMemorySessionStore()
	provider := NewSessionCredentialProvider(store)
	ctx := context.Background()

	_, ok := provider.Credential(ctx)
	assert.False(t, ok)

	store.Set(SessionKeyAccessToken, "tok")
	_, ok = provider.Credential(ctx)
	assert.False(t, ok, "a token without a user is not enough")

	store.Set(SessionKeyUserID, "u1")
	cred, ok := provider.Credential(ctx)
	assert.True(t, ok)
	assert.Equal(t, Credential{AccessToken: "tok", UserID: "u1"}, cred)

	store.Set(SessionKeyAccessToken, "tok2")
	cred, _ = provider.Credential(ctx)
	assert.Equal(t, "tok2", cred.AccessToken, "the store is read on every call")

	store.Clear()
	_, ok = provider.Credential(ctx)
	assert.False(t, ok)
}

func TestStaticCredentials(t *testing.T) {
	cred, ok := StaticCredentials{AccessToken: "t", UserID: "u"}.Credential(context.Background())
	assert.True(t, ok)
	assert.Equal(t, Credential{AccessToken: "t", UserID: "u"}, cred)

	_, ok = StaticCredentials{}.Credential(context.Background())
	assert.False(t, ok)
}

func TestCredentialProviderFunc(t *testing.T) {
	calls := 0
	p := CredentialProviderFunc(func(context.Context) (Credential, bool) {
		calls++
		return Credential{AccessToken: "t", UserID: "u"}, true
	})

	p.Credential(context.Background())
	p.Credential(context.Background())

	assert.Equal(t, 2, calls)
}
