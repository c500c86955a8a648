package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestHMACVerifierAcceptsValidToken(t *testing.T) {
	userID := uuid.New()
	token := signHS256(t, "secret", jwt.MapClaims{
		"sub":   userID.String(),
		"email": "ada@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	claims, err := NewHMACVerifier("secret").Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != userID || claims.Email != "ada@example.com" || claims.Role != "authenticated" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestHMACVerifierRejectsInvalidTokens(t *testing.T) {
	valid := jwt.MapClaims{"sub": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix()}
	cases := map[string]string{
		"wrong secret": signHS256(t, "other", valid),
		"expired":      signHS256(t, "secret", jwt.MapClaims{"sub": uuid.NewString(), "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":    signHS256(t, "secret", jwt.MapClaims{"sub": uuid.NewString()}),
		"bad subject":  signHS256(t, "secret", jwt.MapClaims{"sub": "service", "exp": time.Now().Add(time.Hour).Unix()}),
		"garbage":      "not.a.token",
	}

	verifier := NewHMACVerifier("secret")
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestKeySetVerifierChecksSignatureAndSubject(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	userID := uuid.New()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": "ada@example.com",
		"aud":   "authenticated",
		"iss":   "https://project.example.co/auth/v1",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := NewKeySetVerifier(keys, "https://project.example.co/auth/v1")

	got, err := verifier.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got.Subject != userID || got.Email != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", got)
	}

	wrongKeys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&other.PublicKey}}
	if _, err := NewKeySetVerifier(wrongKeys, "").Verify(context.Background(), signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign key, got %v", err)
	}

	if _, err := NewKeySetVerifier(keys, "https://elsewhere.example.co").Verify(context.Background(), signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for issuer mismatch, got %v", err)
	}
}
