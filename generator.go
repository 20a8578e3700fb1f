package authx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

var timeNow = time.Now

// reservedClaims are standard JWT claim names callers may not set through
// developer claims.
var reservedClaims = []string{
	"acr", "amr", "at_hash", "aud", "auth_time", "azp", "cnf",
	"c_hash", "exp", "iat", "iss", "jti", "nbf", "nonce",
}

// TokenGenerator mints signed custom tokens a client exchanges for a session.
type TokenGenerator struct {
	signer   Signer
	tenantID string
}

// NewTokenGenerator resolves a credential and signer for the given
// configuration and returns a generator bound to them.
func NewTokenGenerator(ctx context.Context, cfg Config) (*TokenGenerator, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, newError(ErrCodeInvalidArgument, err)
	}
	cred, err := ResolveCredential(ctx, cfg)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(ctx, cfg, cred)
	if err != nil {
		return nil, err
	}
	return &TokenGenerator{signer: signer, tenantID: cfg.TenantID}, nil
}

// CreateCustomToken mints a custom token for the given uid.
func (g *TokenGenerator) CreateCustomToken(ctx context.Context, uid string) (string, error) {
	return g.CreateCustomTokenWithClaims(ctx, uid, nil)
}

// CreateCustomTokenWithClaims mints a custom token carrying the given
// developer claims under the claims field.
func (g *TokenGenerator) CreateCustomTokenWithClaims(ctx context.Context, uid string, claims map[string]any) (string, error) {
	if uid == "" {
		return "", newError(ErrCodeInvalidArgument, fmt.Errorf("uid must be a non-empty string"))
	}
	if len(uid) > maxUIDLength {
		return "", newError(ErrCodeInvalidArgument, fmt.Errorf("uid must be at most %d characters, got %d", maxUIDLength, len(uid)))
	}
	if offenders := reservedClaimKeys(claims); len(offenders) != 0 {
		return "", newError(ErrCodeInvalidArgument, fmt.Errorf(
			"developer claims %q are reserved and cannot be specified", strings.Join(offenders, ", ")))
	}

	accountID, err := g.signer.AccountID(ctx)
	if err != nil {
		return "", err
	}

	now := timeNow().Unix()
	payload := struct {
		UID      string         `json:"uid"`
		Iss      string         `json:"iss"`
		Sub      string         `json:"sub"`
		Aud      string         `json:"aud"`
		Iat      int64          `json:"iat"`
		Exp      int64          `json:"exp"`
		TenantID string         `json:"tenant_id,omitempty"`
		Claims   map[string]any `json:"claims,omitempty"`
	}{
		UID:      uid,
		Iss:      accountID,
		Sub:      accountID,
		Aud:      CustomTokenAudience,
		Iat:      now,
		Exp:      now + int64(tokenLifetime/time.Second),
		TenantID: g.tenantID,
	}
	if len(claims) > 0 {
		payload.Claims = claims
	}

	header := struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}{Alg: g.signer.Algorithm(), Typ: "JWT"}

	headerSeg, err := encodeSegment(header)
	if err != nil {
		return "", newError(ErrCodeInternal, fmt.Errorf("encode header: %w", err))
	}
	payloadSeg, err := encodeSegment(payload)
	if err != nil {
		return "", newError(ErrCodeInternal, fmt.Errorf("encode payload: %w", err))
	}

	signingInput := headerSeg + "." + payloadSeg
	sig, err := g.signer.SignBytes(ctx, []byte(signingInput))
	if err != nil {
		return "", err
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func reservedClaimKeys(claims map[string]any) []string {
	if len(claims) == 0 {
		return nil
	}
	var offenders []string
	for _, name := range reservedClaims {
		if _, ok := claims[name]; ok {
			offenders = append(offenders, name)
		}
	}
	sort.Strings(offenders)
	return offenders
}

func encodeSegment(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}
