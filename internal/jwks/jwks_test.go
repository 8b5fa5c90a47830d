package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func rsaJWK(t *testing.T, kid string, key *rsa.PublicKey) rawKey {
	t.Helper()
	eBytes := big.NewInt(int64(key.E)).Bytes()
	return rawKey{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(eBytes),
	}
}

func TestServiceStartFetchesInitialKeySet(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set := rawSet{Keys: []rawKey{rsaJWK(t, "key-1", &priv.PublicKey)}}
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	svc := New(srv.URL, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.KeyCount() != 1 {
		t.Fatalf("KeyCount = %d, want 1", svc.KeyCount())
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user-1"})
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	parsed, err := jwt.Parse(signed, svc.Keyfunc)
	if err != nil || !parsed.Valid {
		t.Fatalf("Parse with Keyfunc failed: %v", err)
	}
}

func TestKeyfuncRejectsUnknownKid(t *testing.T) {
	svc := New("http://unused.invalid", time.Hour)
	token := jwt.New(jwt.SigningMethodRS256)
	token.Header["kid"] = "missing"
	if _, err := svc.Keyfunc(token); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}

func TestKeyfuncRejectsMissingKid(t *testing.T) {
	svc := New("http://unused.invalid", time.Hour)
	token := jwt.New(jwt.SigningMethodRS256)
	if _, err := svc.Keyfunc(token); err == nil {
		t.Fatal("expected error for missing kid header")
	}
}
