package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingSecret    = errors.New("secret is required")
	ErrMalformedToken   = errors.New("invalid token format")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
)

// UnsubscribeClaims identify the address a one-click unsubscribe link is for.
type UnsubscribeClaims struct {
	Email     string `json:"email"`
	ExpiresAt int64  `json:"exp"`
}

// GenerateUnsubscribeToken returns "<payload>.<hmac>" with both parts in
// unpadded base64url.
func GenerateUnsubscribeToken(email string, ttl time.Duration, secret string) (string, error) {
	return generateToken(UnsubscribeClaims{Email: email, ExpiresAt: time.Now().Add(ttl).Unix()}, secret)
}

func generateToken(claims UnsubscribeClaims, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := mac.Sum(nil)
	return fmt.Sprintf("%s.%s", base64.RawURLEncoding.EncodeToString(payload), base64.RawURLEncoding.EncodeToString(sig)), nil
}

func VerifyUnsubscribeToken(token, secret string) (*UnsubscribeClaims, error) {
	return verifyToken(token, secret, time.Now())
}

func verifyToken(token, secret string, now time.Time) (*UnsubscribeClaims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrMalformedToken
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformedToken
	}
	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedToken
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payloadBytes)
	if !hmac.Equal(sigBytes, mac.Sum(nil)) {
		return nil, ErrInvalidSignature
	}
	var claims UnsubscribeClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil || claims.Email == "" {
		return nil, ErrMalformedToken
	}
	if now.Unix() > claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}
