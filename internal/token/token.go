// Package token issues and verifies the signed session tokens carried in
// the Authorization header of dashboard requests.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Claims identifies the user a token was issued to.
type Claims struct {
	UserID   string
	Username string
	Role     string
	Nonce    string
	IssuedAt time.Time
}

type payload struct {
	UserID   string `json:"u"`
	Username string `json:"n,omitempty"`
	Role     string `json:"r"`
	Nonce    string `json:"x"`
	TS       int64  `json:"t"`
}

// Generate creates a signed token for a user.
func Generate(userID, username, role string, secret []byte) (string, error) {
	return generateAt(userID, username, role, secret, time.Now())
}

func generateAt(userID, username, role string, secret []byte, at time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("token: empty user id")
	}
	data, err := json.Marshal(payload{
		UserID:   userID,
		Username: username,
		Role:     role,
		Nonce:    uuid.NewString(),
		TS:       at.Unix(),
	})
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sign(data, secret)), nil
}

func sign(data, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify checks the token signature and age. A zero ttl never expires.
func Verify(token string, secret []byte, ttl time.Duration) (Claims, error) {
	var c Claims
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return c, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return c, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return c, ErrInvalid
	}
	if !hmac.Equal(sign(data, secret), sig) {
		return c, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil || pl.UserID == "" {
		return c, ErrInvalid
	}
	issued := time.Unix(pl.TS, 0)
	if ttl > 0 && time.Since(issued) > ttl {
		return c, ErrExpired
	}
	return Claims{
		UserID:   pl.UserID,
		Username: pl.Username,
		Role:     pl.Role,
		Nonce:    pl.Nonce,
		IssuedAt: issued,
	}, nil
}

// FromHeader extracts the token from an "Authorization: Bearer" value.
func FromHeader(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	t := strings.TrimSpace(h[len(prefix):])
	return t, t != ""
}
