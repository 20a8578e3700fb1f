package authx

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

const testClientEmail = "signer@test-project.iam.gserviceaccount.com"

func newTestGenerator(t *testing.T) (*TokenGenerator, *rsa.PrivateKey) {
	t.Helper()
	key := newTestKey(t)
	signer := serviceAccountSigner{cert: &Certificate{
		ProjectID:   testProject,
		ClientEmail: testClientEmail,
		PrivateKey:  key,
	}}
	return &TokenGenerator{signer: signer}, key
}

func TestCreateCustomToken(t *testing.T) {
	generator, key := newTestGenerator(t)

	frozen := time.Now().Truncate(time.Second)
	restore := freezeClock(frozen)
	defer restore()

	token, err := generator.CreateCustomTokenWithClaims(context.Background(), "user-1", map[string]any{
		"premium": true,
		"level":   float64(3),
	})
	if err != nil {
		t.Fatalf("CreateCustomTokenWithClaims: %v", err)
	}

	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		t.Fatalf("expected three segments, got %d", len(segments))
	}
	for _, segment := range segments {
		if strings.ContainsAny(segment, "=+/") {
			t.Fatalf("segment not unpadded base64url: %q", segment)
		}
	}

	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	decodeTokenSegment(t, segments[0], &header)
	if header.Alg != "RS256" || header.Typ != "JWT" {
		t.Fatalf("unexpected header: %+v", header)
	}

	var payload struct {
		UID    string         `json:"uid"`
		Iss    string         `json:"iss"`
		Sub    string         `json:"sub"`
		Aud    string         `json:"aud"`
		Iat    int64          `json:"iat"`
		Exp    int64          `json:"exp"`
		Claims map[string]any `json:"claims"`
	}
	decodeTokenSegment(t, segments[1], &payload)
	if payload.UID != "user-1" {
		t.Fatalf("unexpected uid: %q", payload.UID)
	}
	if payload.Iss != testClientEmail || payload.Sub != testClientEmail {
		t.Fatalf("iss/sub must carry the signer account id: %q/%q", payload.Iss, payload.Sub)
	}
	if payload.Aud != CustomTokenAudience {
		t.Fatalf("unexpected aud: %q", payload.Aud)
	}
	if payload.Iat != frozen.Unix() {
		t.Fatalf("unexpected iat: %d, want %d", payload.Iat, frozen.Unix())
	}
	if payload.Exp != payload.Iat+3600 {
		t.Fatalf("exp must be iat+3600, got iat=%d exp=%d", payload.Iat, payload.Exp)
	}
	if premium, _ := payload.Claims["premium"].(bool); !premium {
		t.Fatalf("developer claims not embedded: %v", payload.Claims)
	}

	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	digest := sha256.Sum256([]byte(segments[0] + "." + segments[1]))
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestCreateCustomToken_OmitsEmptyClaims(t *testing.T) {
	generator, _ := newTestGenerator(t)

	for _, claims := range []map[string]any{nil, {}} {
		token, err := generator.CreateCustomTokenWithClaims(context.Background(), "user-1", claims)
		if err != nil {
			t.Fatalf("CreateCustomTokenWithClaims: %v", err)
		}
		var payload map[string]any
		decodeTokenSegment(t, strings.Split(token, ".")[1], &payload)
		if _, ok := payload["claims"]; ok {
			t.Fatalf("claims field must be omitted when empty: %v", payload)
		}
	}
}

func TestCreateCustomToken_UIDBounds(t *testing.T) {
	generator, _ := newTestGenerator(t)
	ctx := context.Background()

	if _, err := generator.CreateCustomToken(ctx, strings.Repeat("u", maxUIDLength)); err != nil {
		t.Fatalf("uid of length %d should be accepted: %v", maxUIDLength, err)
	}

	for _, uid := range []string{"", strings.Repeat("u", maxUIDLength+1)} {
		_, err := generator.CreateCustomToken(ctx, uid)
		var authxErr *Error
		if !errors.As(err, &authxErr) || authxErr.Code != ErrCodeInvalidArgument {
			t.Fatalf("uid %q: expected ErrCodeInvalidArgument, got %v", uid, err)
		}
	}
}

func TestCreateCustomToken_ReservedClaims(t *testing.T) {
	generator, _ := newTestGenerator(t)
	ctx := context.Background()

	for _, name := range reservedClaims {
		_, err := generator.CreateCustomTokenWithClaims(ctx, "user-1", map[string]any{name: "x"})
		var authxErr *Error
		if !errors.As(err, &authxErr) || authxErr.Code != ErrCodeInvalidArgument {
			t.Fatalf("claim %q: expected ErrCodeInvalidArgument, got %v", name, err)
		}
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("rejection for %q must name the claim: %v", name, err)
		}
	}

	_, err := generator.CreateCustomTokenWithClaims(ctx, "user-1", map[string]any{
		"nonce": "x",
		"iss":   "x",
		"safe":  "x",
	})
	if err == nil {
		t.Fatal("expected error for combined reserved claims")
	}
	for _, name := range []string{"iss", "nonce"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("rejection must name %q: %v", name, err)
		}
	}
}

func TestCreateCustomToken_TenantScoped(t *testing.T) {
	generator, _ := newTestGenerator(t)
	generator.tenantID = "tenant-a"

	token, err := generator.CreateCustomToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateCustomToken: %v", err)
	}
	var payload map[string]any
	decodeTokenSegment(t, strings.Split(token, ".")[1], &payload)
	if tenant, _ := payload["tenant_id"].(string); tenant != "tenant-a" {
		t.Fatalf("unexpected tenant_id: %v", payload["tenant_id"])
	}
}

func TestCreateCustomToken_Emulated(t *testing.T) {
	generator := &TokenGenerator{signer: emulatedSigner{}}

	token, err := generator.CreateCustomToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateCustomToken: %v", err)
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 || segments[2] != "" {
		t.Fatalf("emulated token must carry an empty signature segment: %q", token)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	decodeTokenSegment(t, segments[0], &header)
	if header.Alg != "none" {
		t.Fatalf("unexpected alg: %q", header.Alg)
	}
}

func decodeTokenSegment(t *testing.T, segment string, v any) {
	t.Helper()
	data, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		t.Fatalf("decode segment: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
}
