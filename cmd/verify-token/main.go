package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	authx "github.com/bionicotaku/lingo-utils-authx"
)

func main() {
	envPath := defaultEnvPath()
	if err := loadEnvFile(envPath); err != nil {
		log.Printf("warning: load %s: %v", envPath, err)
	}

	var (
		defaultProjectID = os.Getenv("AUTHX_PROJECT_ID")
		defaultToken     = os.Getenv("AUTHX_TOKEN")
		defaultTenant    = os.Getenv("AUTHX_TENANT_ID")
	)

	projectID := flag.String("project-id", defaultProjectID, "Project ID (env AUTHX_PROJECT_ID)")
	token := flag.String("token", defaultToken, "Token to verify (env AUTHX_TOKEN)")
	tenantID := flag.String("tenant-id", defaultTenant, "Expected tenant ID (env AUTHX_TENANT_ID)")
	kind := flag.String("kind", "id-token", "Token kind: id-token or session-cookie")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout for verification")
	flag.Parse()

	if *projectID == "" {
		flag.Usage()
		log.Fatal("project id is required (via flag, .env, or environment variables)")
	}
	if *token == "" {
		flag.Usage()
		log.Fatal("token is required (via flag, .env, or environment variables)")
	}

	verifier, err := authx.NewVerifier(authx.Config{
		ProjectID:   *projectID,
		TenantID:    *tenantID,
		HTTPTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("create verifier: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var decoded *authx.Token
	switch *kind {
	case "id-token":
		decoded, err = verifier.VerifyIDToken(ctx, *token)
	case "session-cookie":
		decoded, err = verifier.VerifySessionCookie(ctx, *token)
	default:
		log.Fatalf("unknown token kind %q", *kind)
	}
	if err != nil {
		log.Fatalf("verification failed: %v", err)
	}

	printToken(decoded)
}

func printToken(token *authx.Token) {
	fmt.Println("== Token Verified ==")
	fmt.Printf("uid          : %s\n", token.UID)
	fmt.Printf("issuer       : %s\n", token.Issuer)
	fmt.Printf("audience     : %s\n", token.Audience)
	if token.TenantID != "" {
		fmt.Printf("tenant       : %s\n", token.TenantID)
	}
	if !token.IssuedAt.IsZero() {
		fmt.Printf("issued_at    : %s\n", token.IssuedAt.Format(time.RFC3339))
	}
	if !token.Expires.IsZero() {
		fmt.Printf("expires_at   : %s\n", token.Expires.Format(time.RFC3339))
	}
	if !token.AuthTime.IsZero() {
		fmt.Printf("auth_time    : %s\n", token.AuthTime.Format(time.RFC3339))
	}
	if len(token.Claims) > 0 {
		fmt.Println("claims:")
		for k, v := range token.Claims {
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
}

func defaultEnvPath() string {
	if path := os.Getenv("AUTHX_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			log.Printf("warning: invalid line %d in %s", lineNum, filepath.Base(path))
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			log.Printf("warning: set env %s: %v", key, err)
		}
	}
	return scanner.Err()
}
