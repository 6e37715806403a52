// Package identity resolves who is calling the Mini-App backend: the Telegram
// host bridge when present, a persisted device identity otherwise.
package identity

import (
	"context"
	"net/http"
)

// Provider resolves the caller's user id from a request.
type Provider interface {
	CurrentUserID(r *http.Request) (string, bool)
}

// Source tells which provider produced an identity.
type Source string

const (
	SourceTelegram  Source = "telegram"
	SourcePersisted Source = "persisted"
)

// Identity is the resolved caller.
type Identity struct {
	UserID string
	Source Source
}

// Chain tries providers in order and returns the first hit.
type Chain []Provider

func (c Chain) CurrentUserID(r *http.Request) (string, bool) {
	id, ok := c.Resolve(r)
	return id.UserID, ok
}

// Resolve is CurrentUserID plus the source of the winning provider.
func (c Chain) Resolve(r *http.Request) (Identity, bool) {
	for _, p := range c {
		id, ok := p.CurrentUserID(r)
		if !ok {
			continue
		}
		out := Identity{UserID: id}
		if s, ok := p.(interface{ Source() Source }); ok {
			out.Source = s.Source()
		}
		return out, true
	}
	return Identity{}, false
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by the identity middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserID is a shorthand for FromContext(ctx).UserID.
func UserID(ctx context.Context) (string, bool) {
	id, ok := FromContext(ctx)
	return id.UserID, ok
}
