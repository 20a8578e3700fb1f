package authx

import "context"

type verifiedTokenKey struct{}

// BindToken stores a verified token inside the context for downstream consumers.
func BindToken(ctx context.Context, token *Token) context.Context {
	return context.WithValue(ctx, verifiedTokenKey{}, token)
}

// TokenFromContext retrieves a token previously stored in the context.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	if ctx == nil {
		return nil, false
	}
	token, ok := ctx.Value(verifiedTokenKey{}).(*Token)
	return token, ok
}
