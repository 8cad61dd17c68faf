package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway is the clock skew tolerated when validating session tokens.
const DefaultLeeway = 30 * time.Second

// DefaultSessionExpiry is the lifetime of tokens minted by Signer.
const DefaultSessionExpiry = 24 * time.Hour

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyUserID is returned when minting a token for an empty user id.
	ErrEmptyUserID = errors.New("userID cannot be empty")
)

// Claims are the session token claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Signer mints and validates HS256 session tokens.
// Supports dual-key rotation: tokens are signed with the current secret and
// validated against the current or previous secret.
type Signer struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	expiry         time.Duration
	now            func() time.Time
}

// NewSigner creates a Signer. previousSecret may be empty.
func NewSigner(currentSecret, previousSecret string) *Signer {
	s := &Signer{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
		expiry:        DefaultSessionExpiry,
		now:           time.Now,
	}
	if previousSecret != "" {
		s.previousSecret = []byte(previousSecret)
	}
	return s
}

// Sign mints a session token for userID.
func (s *Signer) Sign(userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.currentSecret)
}

// Validate parses tokenString and returns its claims.
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err != nil && s.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = s.parse(tokenString, s.previousSecret)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Signer) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenSession is a Session backed by a signed session token.
// The token is re-validated on every resolution so an expired session becomes
// unauthenticated without a restart.
type TokenSession struct {
	signer *Signer

	mu    sync.RWMutex
	token string
}

// NewTokenSession creates a session validating tokens with signer.
func NewTokenSession(signer *Signer, token string) *TokenSession {
	return &TokenSession{signer: signer, token: token}
}

// SetToken replaces the session token. An empty token signs the user out.
func (s *TokenSession) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// CurrentUserID returns the token subject, or ErrUnauthenticated wrapping the
// validation failure.
func (s *TokenSession) CurrentUserID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return "", ErrUnauthenticated
	}
	claims, err := s.signer.Validate(token)
	if err != nil {
		return "", errors.Join(ErrUnauthenticated, err)
	}
	return claims.Subject, nil
}
