package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"character-sync/internal/auth"
	svcerrors "character-sync/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKid = "test-key-1"

func newKeySet(t *testing.T) (*rsa.PrivateKey, jwk.Set) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	return priv, set
}

func signToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": "user-1",
		"iss": "issuer",
		"aud": "audience",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

func TestSubject_ValidToken(t *testing.T) {
	priv, set := newKeySet(t)
	validator := auth.NewTokenValidator(auth.StaticKeySource{Set: set}, "issuer", "audience")

	sub, err := validator.Subject(context.Background(), signToken(t, priv, testKid, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestValidateToken_Rejections(t *testing.T) {
	priv, set := newKeySet(t)
	validator := auth.NewTokenValidator(auth.StaticKeySource{Set: set}, "issuer", "audience")

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"
	wrongAudience := validClaims()
	wrongAudience["aud"] = "other"
	noExp := validClaims()
	delete(noExp, "exp")

	tests := []struct {
		name  string
		token string
	}{
		{"missing kid", signToken(t, priv, "", validClaims())},
		{"unknown kid", signToken(t, priv, "nope", validClaims())},
		{"expired", signToken(t, priv, testKid, expired)},
		{"wrong issuer", signToken(t, priv, testKid, wrongIssuer)},
		{"wrong audience", signToken(t, priv, testKid, wrongAudience)},
		{"no expiry", signToken(t, priv, testKid, noExp)},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateToken(context.Background(), tt.token)
			assert.Error(t, err)
		})
	}
}

func TestSubject_MissingSubject(t *testing.T) {
	priv, set := newKeySet(t)
	validator := auth.NewTokenValidator(auth.StaticKeySource{Set: set}, "issuer", "audience")

	claims := validClaims()
	delete(claims, "sub")
	_, err := validator.Subject(context.Background(), signToken(t, priv, testKid, claims))
	assert.True(t, errors.Is(err, svcerrors.ErrUnauthorized))
}

func TestRemoteKeySource(t *testing.T) {
	priv, set := newKeySet(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := auth.NewRemoteKeySource(ctx, srv.URL, 15*time.Minute)
	require.NoError(t, err)

	validator := auth.NewTokenValidator(source, "issuer", "audience")
	sub, err := validator.Subject(ctx, signToken(t, priv, testKid, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}
