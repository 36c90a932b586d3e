// Package identity carries caller identity attributes resolved by the
// authentication collaborator through request contexts.
package identity

import "context"

type emailKey struct{}

// WithEmail returns a context carrying the caller's e-mail address.
func WithEmail(ctx context.Context, email string) context.Context {
	if email == "" {
		return ctx
	}
	return context.WithValue(ctx, emailKey{}, email)
}

// Email returns the caller's e-mail address, or "" when unknown.
func Email(ctx context.Context) string {
	email, _ := ctx.Value(emailKey{}).(string)
	return email
}
