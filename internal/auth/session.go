// Package auth resolves the current user id that keys every per-user write and
// every locally persisted preference.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthenticated is returned when no current user id can be resolved.
var ErrUnauthenticated = errors.New("unauthenticated: no current user id")

// Session resolves the id of the signed-in user.
type Session interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// SessionFunc adapts a function to Session.
type SessionFunc func(ctx context.Context) (string, error)

// CurrentUserID calls f.
func (f SessionFunc) CurrentUserID(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticSession is a Session with a fixed user id. An empty id is unauthenticated.
type StaticSession string

// CurrentUserID returns the fixed id, or ErrUnauthenticated when it is empty.
func (s StaticSession) CurrentUserID(context.Context) (string, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// RequireUserID resolves the current user id from s, treating a nil session or an
// empty id as ErrUnauthenticated.
func RequireUserID(ctx context.Context, s Session) (string, error) {
	if s == nil {
		return "", ErrUnauthenticated
	}
	id, err := s.CurrentUserID(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return "", err
		}
		return "", errors.Join(ErrUnauthenticated, err)
	}
	if strings.TrimSpace(id) == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}
