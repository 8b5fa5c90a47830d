// Package jwks keeps a warm, RWMutex-guarded snapshot of a remote JSON
// Web Key Set, refreshed on an interval in the background, and exposes
// it as a github.com/golang-jwt/jwt/v5 Keyfunc for the thin bearer-token
// check in front of the public HTTP surface (spec.md §6, SPEC_FULL.md
// §11). Full claim-shape validation (issuer, subject, scopes) remains
// the external auth collaborator's concern — this package only answers
// "which public key signed this token".
package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"wallet-server/internal/cache"
	"wallet-server/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const refreshLockKey = "jwks:refresh:lock"

type rawSet struct {
	Keys []rawKey `json:"keys"`
}

type rawKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// Service holds the current key snapshot and refreshes it periodically.
type Service struct {
	url             string
	httpClient      *http.Client
	refreshInterval time.Duration

	mu   sync.RWMutex
	keys map[string]any
}

func New(jwksURL string, refreshInterval time.Duration) *Service {
	if refreshInterval <= 0 {
		refreshInterval = 10 * time.Minute
	}
	return &Service{
		url:             jwksURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		refreshInterval: refreshInterval,
		keys:            make(map[string]any),
	}
}

// Start performs the initial fetch synchronously and without the refresh
// lock (a server should not come up with an empty key set) and then
// refreshes on a ticker until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	keys, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("jwks: initial fetch failed: %w", err)
	}
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.refresh(ctx); err != nil {
					logger.Warn("jwks refresh failed, keeping stale snapshot", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// refresh acquires a short Redis lock before hitting the network so
// that a multi-instance deployment doesn't stampede the JWKS endpoint
// on the same tick (SPEC_FULL.md §10 "JWKS-refresh singleflight
// guard"). Losing the race is not an error: some other instance's
// refresh result is still useful to have in steady state, so this
// instance just keeps its current snapshot for one more interval.
func (s *Service) refresh(ctx context.Context) error {
	if cache.Client != nil {
		acquired, err := cache.SetNX(ctx, refreshLockKey, "1", s.refreshInterval/2)
		if err == nil && !acquired {
			return nil
		}
	}

	keys, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	logger.Info("jwks snapshot refreshed", zap.Int("key_count", len(keys)))
	return nil
}

func (s *Service) fetch(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("jwks endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var set rawSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode jwks response: %w", err)
	}

	keys := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		pub, err := parseKey(k)
		if err != nil {
			logger.Warn("jwks: skipping unparseable key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func parseKey(k rawKey) (any, error) {
	switch k.Kty {
	case "RSA":
		return parseRSAKey(k)
	case "EC":
		return parseECKey(k)
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func parseRSAKey(k rawKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("zero rsa exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func parseECKey(k rawKey) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported ec curve %q", k.Crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("invalid x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("invalid y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// Keyfunc satisfies github.com/golang-jwt/jwt/v5's Keyfunc signature,
// resolving the token's "kid" header against the current snapshot.
func (s *Service) Keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token header missing kid")
	}

	s.mu.RLock()
	key, ok := s.keys[kid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no jwks key for kid %q", kid)
	}
	return key, nil
}

// KeyCount reports the current snapshot size.
func (s *Service) KeyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
