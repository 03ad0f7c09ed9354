package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header carries the request id between the console, its callers and the
// backend API.
const Header = "X-Request-Id"

type ctxKey struct{}

// New returns a random v4 id for requests that arrive without one.
func New() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(id))
}

func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
