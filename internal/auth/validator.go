package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	svcerrors "character-sync/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySource provides the public keys bearer tokens are verified against.
type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

// RemoteKeySource keeps a refreshed copy of a remote JWKS document.
type RemoteKeySource struct {
	url   string
	cache *jwk.Cache
}

// NewRemoteKeySource registers url with a background-refreshing JWKS cache and
// performs the first fetch.
func NewRemoteKeySource(ctx context.Context, url string, refreshEvery time.Duration) (*RemoteKeySource, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(url, jwk.WithMinRefreshInterval(refreshEvery)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, url); err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return &RemoteKeySource{url: url, cache: cache}, nil
}

// KeySet returns the cached key set.
func (s *RemoteKeySource) KeySet(ctx context.Context) (jwk.Set, error) {
	return s.cache.Get(ctx, s.url)
}

// StaticKeySource serves a fixed key set.
type StaticKeySource struct {
	Set jwk.Set
}

// KeySet returns the fixed key set.
func (s StaticKeySource) KeySet(context.Context) (jwk.Set, error) {
	return s.Set, nil
}

// TokenValidator handles bearer token validation
type TokenValidator struct {
	keys     KeySource
	issuer   string
	audience string
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(keys KeySource, issuer, audience string) *TokenValidator {
	return &TokenValidator{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
	}
}

// ValidateToken verifies an RS256 bearer token and returns its claims.
func (tv *TokenValidator) ValidateToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	set, err := tv.keys.KeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Require kid so we always pick an explicit key; no fallback.
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid in token header")
		}
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("unknown kid %s", kid)
		}
		var pub interface{}
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("key %s: %w", kid, err)
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(tv.issuer),
		jwt.WithAudience(tv.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Subject validates tokenString and returns the local account id it was
// issued for.
func (tv *TokenValidator) Subject(ctx context.Context, tokenString string) (string, error) {
	claims, err := tv.ValidateToken(ctx, tokenString)
	if err != nil {
		return "", svcerrors.Wrap(err, svcerrors.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", svcerrors.WithReason(svcerrors.ErrUnauthorized, "token has no subject")
	}
	return sub, nil
}
