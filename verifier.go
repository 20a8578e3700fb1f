package authx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// tokenKind parameterizes the shared verification pipeline for ID tokens and
// session cookies.
type tokenKind struct {
	name         string
	certsURL     string
	issuerPrefix string
}

var (
	idTokenKind = tokenKind{
		name:         "ID token",
		certsURL:     idTokenCertsURL,
		issuerPrefix: idTokenIssuerPrefix,
	}
	sessionCookieKind = tokenKind{
		name:         "session cookie",
		certsURL:     sessionCookieCertsURL,
		issuerPrefix: sessionCookieIssuerPrefix,
	}
)

// Verifier validates ID tokens and session cookies issued for a project.
type Verifier struct {
	projectID string
	tenantID  string
	clockSkew time.Duration
	emulator  bool

	idTokenKeys       *keyCache
	sessionCookieKeys *keyCache
}

// NewVerifier builds a verifier from the given configuration. Key caches are
// populated lazily on first use.
func NewVerifier(cfg Config) (*Verifier, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, newError(ErrCodeInvalidArgument, err)
	}
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
	return &Verifier{
		projectID:         cfg.ProjectID,
		tenantID:          cfg.TenantID,
		clockSkew:         cfg.ClockSkew,
		emulator:          cfg.emulator(),
		idTokenKeys:       newKeyCache(idTokenKind.certsURL, client),
		sessionCookieKeys: newKeyCache(sessionCookieKind.certsURL, client),
	}, nil
}

// VerifyIDToken validates the given ID token.
func (v *Verifier) VerifyIDToken(ctx context.Context, token string) (*Token, error) {
	return v.verify(ctx, token, idTokenKind, v.idTokenKeys)
}

// VerifySessionCookie validates the given session cookie.
func (v *Verifier) VerifySessionCookie(ctx context.Context, cookie string) (*Token, error) {
	return v.verify(ctx, cookie, sessionCookieKind, v.sessionCookieKeys)
}

func (v *Verifier) verify(ctx context.Context, raw string, kind tokenKind, keys *keyCache) (*Token, error) {
	if raw == "" {
		return nil, newError(ErrCodeInvalidArgument, fmt.Errorf("%s must be a non-empty string", kind.name))
	}

	header, claims, err := decodeUnverified(raw, kind)
	if err != nil {
		return nil, err
	}

	unsigned := v.emulator && header.Alg == "none"

	if !unsigned {
		if header.Kid == "" {
			return nil, classifyKidless(header, claims, kind)
		}
		if header.Alg != "RS256" {
			return nil, newError(ErrCodeMalformedToken, fmt.Errorf(
				"%s has incorrect algorithm %q, expected RS256", kind.name, header.Alg))
		}
	}

	aud := audienceFromClaims(claims)
	if aud != v.projectID {
		if aud == CustomTokenAudience {
			return nil, newError(ErrCodeWrongTokenType, fmt.Errorf(
				"expected %s, but was given a custom token", kind.name))
		}
		return nil, newError(ErrCodeInvalidAudience, fmt.Errorf(
			"%s has incorrect aud claim %q, expected %q", kind.name, aud, v.projectID))
	}

	expectedIssuer := kind.issuerPrefix + v.projectID
	if iss, _ := claims["iss"].(string); iss != expectedIssuer {
		return nil, newError(ErrCodeInvalidIssuer, fmt.Errorf(
			"%s has incorrect iss claim %q, expected %q", kind.name, iss, expectedIssuer))
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, newError(ErrCodeMalformedToken, fmt.Errorf("%s has an empty sub claim", kind.name))
	}
	if len(sub) > maxUIDLength {
		return nil, newError(ErrCodeMalformedToken, fmt.Errorf(
			"%s has a sub claim longer than %d characters", kind.name, maxUIDLength))
	}

	tenantID := tenantFromClaims(claims)
	if v.tenantID != "" && tenantID != v.tenantID {
		return nil, newError(ErrCodeInvalidAudience, fmt.Errorf(
			"%s has tenant id %q, expected %q", kind.name, tenantID, v.tenantID))
	}

	if !unsigned {
		set, err := keys.Keys(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := set.LookupKeyID(header.Kid)
		if !ok {
			return nil, newError(ErrCodeUnknownKeyID, fmt.Errorf(
				"%s key id %q not found in the current key set; the token likely expired and its signing key rotated out",
				kind.name, header.Kid))
		}
		if _, err := jws.Verify([]byte(raw), jws.WithKey(jwa.RS256, key)); err != nil {
			return nil, newError(ErrCodeInvalidSignature, fmt.Errorf("verify %s signature: %w", kind.name, err))
		}
	}

	parsed, err := tokenFromClaims(claims)
	if err != nil {
		return nil, newError(ErrCodeMalformedToken, fmt.Errorf("decode %s payload: %w", kind.name, err))
	}
	validateOpts := []jwt.ValidateOption{
		jwt.WithAcceptableSkew(v.clockSkew),
		jwt.WithClock(jwt.ClockFunc(timeNow)),
	}
	if err := jwt.Validate(parsed, validateOpts...); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, newError(ErrCodeExpired, fmt.Errorf(
				"%s has expired; get a fresh %s and retry: %w", kind.name, kind.name, err))
		}
		return nil, newError(ErrCodeMalformedToken, fmt.Errorf("validate %s claims: %w", kind.name, err))
	}

	token := &Token{
		UID:      sub,
		Subject:  sub,
		Issuer:   expectedIssuer,
		Audience: aud,
		Expires:  parsed.Expiration(),
		IssuedAt: parsed.IssuedAt(),
		TenantID: tenantID,
		Claims:   claims,
	}
	if authTime, ok := claims["auth_time"].(float64); ok {
		token.AuthTime = time.Unix(int64(authTime), 0).UTC()
	}
	return token, nil
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

// decodeUnverified splits the compact serialization and decodes header and
// payload without checking the signature.
func decodeUnverified(raw string, kind tokenKind) (tokenHeader, map[string]any, error) {
	var header tokenHeader
	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return header, nil, newError(ErrCodeMalformedToken, fmt.Errorf(
			"%s must consist of three dot-separated segments, got %d", kind.name, len(segments)))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return header, nil, newError(ErrCodeMalformedToken, fmt.Errorf("decode %s header: %w", kind.name, err))
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return header, nil, newError(ErrCodeMalformedToken, fmt.Errorf("decode %s header: %w", kind.name, err))
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return header, nil, newError(ErrCodeMalformedToken, fmt.Errorf("decode %s payload: %w", kind.name, err))
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return header, nil, newError(ErrCodeMalformedToken, fmt.Errorf("decode %s payload: %w", kind.name, err))
	}
	return header, claims, nil
}

func tokenFromClaims(claims map[string]any) (jwt.Token, error) {
	tok := jwt.New()
	for k, val := range claims {
		if err := tok.Set(k, val); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// classifyKidless distinguishes custom tokens and legacy custom tokens from
// genuinely malformed input, so callers get a wrong-token-type diagnostic
// instead of a generic decode error.
func classifyKidless(header tokenHeader, claims map[string]any, kind tokenKind) error {
	if audienceFromClaims(claims) == CustomTokenAudience {
		return newError(ErrCodeWrongTokenType, fmt.Errorf(
			"expected %s, but was given a custom token", kind.name))
	}
	if header.Alg == "HS256" {
		if version, ok := claims["v"].(float64); ok && version == 0 {
			if d, ok := claims["d"].(map[string]any); ok {
				if _, ok := d["uid"]; ok {
					return newError(ErrCodeWrongTokenType, fmt.Errorf(
						"expected %s, but was given a legacy custom token", kind.name))
				}
			}
		}
	}
	return newError(ErrCodeMalformedToken, fmt.Errorf("%s has no kid header", kind.name))
}

// audienceFromClaims tolerates the single-element array form some JWT
// libraries emit for aud.
func audienceFromClaims(claims map[string]any) string {
	switch aud := claims["aud"].(type) {
	case string:
		return aud
	case []any:
		if len(aud) == 1 {
			if s, ok := aud[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func tenantFromClaims(claims map[string]any) string {
	fb, ok := claims["firebase"].(map[string]any)
	if !ok {
		return ""
	}
	tenant, _ := fb["tenant"].(string)
	return tenant
}
