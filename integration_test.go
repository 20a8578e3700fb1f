package authx

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLiveIntegration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("RUN_INTEGRATION_TESTS not set to true")
	}

	projectID := strings.TrimSpace(os.Getenv("AUTHX_PROJECT_ID"))
	if projectID == "" {
		t.Fatal("AUTHX_PROJECT_ID environment variable required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := Config{ProjectID: projectID}
	generator, err := NewTokenGenerator(ctx, cfg)
	if err != nil {
		t.Fatalf("NewTokenGenerator: %v", err)
	}

	token, err := generator.CreateCustomTokenWithClaims(ctx, "integration-user", map[string]any{
		"integration": true,
	})
	if err != nil {
		t.Fatalf("CreateCustomTokenWithClaims: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("expected compact JWT, got %d segments", len(parts))
	}

	if idToken := strings.TrimSpace(os.Getenv("AUTHX_TEST_ID_TOKEN")); idToken != "" {
		verifier, err := NewVerifier(cfg)
		if err != nil {
			t.Fatalf("NewVerifier: %v", err)
		}
		decoded, err := verifier.VerifyIDToken(ctx, idToken)
		if err != nil {
			t.Fatalf("VerifyIDToken: %v", err)
		}
		if decoded.UID == "" {
			t.Fatal("decoded token has empty uid")
		}
	}
}
