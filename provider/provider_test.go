package provider_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/stretchr/testify/require"
)

func TestEmitter(t *testing.T) {
	var e provider.Emitter
	var first, second []provider.EventType

	unsubFirst := e.OnAuthStateChange(func(ev provider.AuthEvent) { first = append(first, ev.Type) })
	e.OnAuthStateChange(func(ev provider.AuthEvent) { second = append(second, ev.Type) })

	e.Emit(provider.AuthEvent{Type: provider.SignedIn})
	unsubFirst()
	unsubFirst()
	e.Emit(provider.AuthEvent{Type: provider.SignedOut})

	require.Equal(t, []provider.EventType{provider.SignedIn}, first)
	require.Equal(t, []provider.EventType{provider.SignedIn, provider.SignedOut}, second)
}

func TestAsError(t *testing.T) {
	err := fmt.Errorf("sign in: %w", &provider.Error{Status: 400, Message: "Invalid login credentials"})
	pe, ok := provider.AsError(err)
	require.True(t, ok)
	require.Equal(t, "Invalid login credentials", pe.Message)

	_, ok = provider.AsError(fmt.Errorf("plain"))
	require.False(t, ok)
}

func TestAccessTokenContext(t *testing.T) {
	_, ok := provider.AccessTokenFrom(context.Background())
	require.False(t, ok)

	token, ok := provider.AccessTokenFrom(provider.WithAccessToken(context.Background(), "jwt"))
	require.True(t, ok)
	require.Equal(t, "jwt", token)
}

func TestMetadataString(t *testing.T) {
	u := provider.User{UserMetadata: map[string]any{"name": "Ali", "full_name": ""}}
	require.Equal(t, "Ali", u.MetadataString("full_name", "name"))
	require.Empty(t, u.MetadataString("avatar_url"))
}
