package state

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by stores for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions keyed by id. Implementations must return
// independent copies: callers mutate what they load and save back.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}
