package authx

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/httpcc"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// keyCache fetches and caches the public signing keys backing verification.
// The endpoint serves a JSON kid-to-PEM-certificate map; the response's
// Cache-Control max-age directive governs the refresh interval.
type keyCache struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	keys   jwk.Set
	expiry time.Time
}

func newKeyCache(url string, client *http.Client) *keyCache {
	return &keyCache{url: url, client: client}
}

// Keys returns the current key set, fetching when no cached copy exists or
// the cached copy has expired. Fetch failures are not cached.
func (c *keyCache) Keys(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	keys, expiry := c.keys, c.expiry
	c.mu.Unlock()

	now := timeNow()
	if keys != nil && now.Before(expiry) {
		return keys, nil
	}

	keys, expiry, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.keys, c.expiry = keys, expiry
	c.mu.Unlock()
	return keys, nil
}

func (c *keyCache) fetch(ctx context.Context) (jwk.Set, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, time.Time{}, newError(ErrCodeKeysUnavailable, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, time.Time{}, newError(ErrCodeKeysUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, newError(ErrCodeKeysUnavailable,
			fmt.Errorf("key endpoint returned status %d", resp.StatusCode))
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, time.Time{}, newError(ErrCodeKeysUnavailable, fmt.Errorf("decode key payload: %w", err))
	}
	if msg, ok := payload["error"]; ok {
		if desc, ok := payload["error_description"]; ok {
			return nil, time.Time{}, newError(ErrCodeKeysUnavailable, fmt.Errorf("key endpoint error: %s: %s", msg, desc))
		}
		return nil, time.Time{}, newError(ErrCodeKeysUnavailable, fmt.Errorf("key endpoint error: %s", msg))
	}

	set := jwk.NewSet()
	for kid, certPEM := range payload {
		key, err := keyFromCertPEM(kid, certPEM)
		if err != nil {
			return nil, time.Time{}, newError(ErrCodeKeysUnavailable, fmt.Errorf("key %q: %w", kid, err))
		}
		if err := set.AddKey(key); err != nil {
			return nil, time.Time{}, newError(ErrCodeKeysUnavailable, fmt.Errorf("key %q: %w", kid, err))
		}
	}
	if set.Len() == 0 {
		return nil, time.Time{}, newError(ErrCodeKeysUnavailable, errors.New("key endpoint returned no keys"))
	}

	// Absent or unparseable Cache-Control leaves the expiry at now, so the
	// next call fetches again.
	expiry := timeNow()
	if cc := resp.Header.Get("Cache-Control"); cc != "" {
		if dir, err := httpcc.ParseResponse(cc); err == nil {
			if maxAge, ok := dir.MaxAge(); ok {
				expiry = expiry.Add(time.Duration(maxAge) * time.Second)
			}
		}
	}
	return set, expiry, nil
}

func keyFromCertPEM(kid, certPEM string) (jwk.Key, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errors.New("not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	key, err := jwk.FromRaw(cert.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("wrap public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	return key, nil
}
