package notify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim of session tokens issued by HMACTokens.
const TokenIssuer = "ragingest"

// MinSecretBytes is the shortest accepted HMAC signing secret.
const MinSecretBytes = 32

// ErrUnauthorized is returned for a missing, forged or expired session token.
var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier checks a session token and returns the owner it was issued
// to. The Hub registers sessions under that owner, never under one the
// client names itself.
type TokenVerifier interface {
	VerifyOwner(token string) (owner string, err error)
}

// HMACTokens issues and verifies HS256 JWTs whose subject is the owner id.
type HMACTokens struct {
	secret []byte
	now    func() time.Time
}

var _ TokenVerifier = (*HMACTokens)(nil)

// NewHMACTokens creates a token issuer and verifier for secret.
func NewHMACTokens(secret string) (*HMACTokens, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretBytes, len(secret))
	}
	return &HMACTokens{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for owner that expires after ttl.
func (t *HMACTokens) Issue(owner string, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", errors.New("owner is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// VerifyOwner implements TokenVerifier. Only HS256 tokens from TokenIssuer
// with an expiry and a subject are accepted.
func (t *HMACTokens) VerifyOwner(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// requestToken reads the session token from the Authorization header or,
// for browsers that cannot set headers on a websocket, the token query
// parameter.
func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("token")
}
