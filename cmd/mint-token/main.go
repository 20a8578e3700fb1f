package main

import (
	"bufio"
	"context"
	"encoding/json"
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
		defaultProjectID      = os.Getenv("AUTHX_PROJECT_ID")
		defaultUID            = os.Getenv("AUTHX_UID")
		defaultClaims         = os.Getenv("AUTHX_CLAIMS")
		defaultTenant         = os.Getenv("AUTHX_TENANT_ID")
		defaultServiceAccount = os.Getenv("AUTHX_SERVICE_ACCOUNT")
	)

	projectID := flag.String("project-id", defaultProjectID, "Project ID (env AUTHX_PROJECT_ID)")
	uid := flag.String("uid", defaultUID, "User ID to mint the token for (env AUTHX_UID)")
	claimsJSON := flag.String("claims", defaultClaims, "Developer claims as a JSON object (env AUTHX_CLAIMS)")
	tenantID := flag.String("tenant-id", defaultTenant, "Tenant ID to scope the token to (env AUTHX_TENANT_ID)")
	serviceAccount := flag.String("service-account", defaultServiceAccount, "Service account for remote signing (env AUTHX_SERVICE_ACCOUNT)")
	credentials := flag.String("credentials", "", "Path to a credentials JSON key (default GOOGLE_APPLICATION_CREDENTIALS)")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout for credential resolution and signing")
	flag.Parse()

	if *projectID == "" {
		flag.Usage()
		log.Fatal("project id is required (via flag, .env, or environment variables)")
	}
	if *uid == "" {
		flag.Usage()
		log.Fatal("uid is required (via flag, .env, or environment variables)")
	}

	var claims map[string]any
	if *claimsJSON != "" {
		if err := json.Unmarshal([]byte(*claimsJSON), &claims); err != nil {
			log.Fatalf("parse claims JSON: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	generator, err := authx.NewTokenGenerator(ctx, authx.Config{
		ProjectID:        *projectID,
		TenantID:         *tenantID,
		ServiceAccountID: *serviceAccount,
		CredentialsFile:  *credentials,
	})
	if err != nil {
		log.Fatalf("create token generator: %v", err)
	}

	token, err := generator.CreateCustomTokenWithClaims(ctx, *uid, claims)
	if err != nil {
		log.Fatalf("mint custom token: %v", err)
	}
	fmt.Println(token)
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
