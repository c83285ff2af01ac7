package provider

import "context"

type accessTokenKey struct{}

// WithAccessToken attaches the signed in user's access token to ctx so row stores can act
// with the user's permissions.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func AccessTokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}
