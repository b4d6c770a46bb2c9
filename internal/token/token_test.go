package token

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate("u1", "alice", "ops", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c, err := Verify(tok, secret, time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.UserID != "u1" || c.Username != "alice" || c.Role != "ops" || c.Nonce == "" {
		t.Fatalf("unexpected claims: %+v", c)
	}
}

func TestTokensAreUnique(t *testing.T) {
	secret := []byte("secret")
	a, _ := Generate("u1", "alice", "ops", secret)
	b, _ := Generate("u1", "alice", "ops", secret)
	if a == b {
		t.Fatal("expected distinct tokens for the same user")
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	tok, err := generateAt("u1", "", "admin", secret, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(tok, secret, time.Hour); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := Verify(tok, secret, 0); err != nil {
		t.Fatalf("zero ttl should not expire: %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate("u1", "", "admin", secret)
	for _, bad := range []string{tok + "x", "abc", "", "a.b.c"} {
		if _, err := Verify(bad, secret, time.Minute); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%q: expected invalid, got %v", bad, err)
		}
	}
	if _, err := Verify(tok, []byte("other"), time.Minute); !errors.Is(err, ErrInvalid) {
		t.Fatalf("wrong secret: expected invalid, got %v", err)
	}
}

func TestGenerateRequiresUser(t *testing.T) {
	if _, err := Generate("", "x", "admin", []byte("s")); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestFromHeader(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	}
	for h, want := range cases {
		got, ok := FromHeader(h)
		if got != want || ok != (want != "") {
			t.Errorf("FromHeader(%q) = %q, %v", h, got, ok)
		}
	}
}
