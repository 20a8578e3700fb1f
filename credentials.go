package authx

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// tokenScopes are requested for every OAuth2 grant performed by a Credential.
var tokenScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/identitytoolkit",
}

var wellKnownCredentialsFile = defaultWellKnownCredentialsFile

// Certificate holds the signing material of a service-account key.
type Certificate struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  *rsa.PrivateKey
}

// Credential produces OAuth2 access tokens for the resolved identity and,
// when the source is a service-account key, exposes its Certificate.
type Credential struct {
	source oauth2.TokenSource
	cert   *Certificate
}

// Certificate returns the service-account certificate, or nil when the
// credential cannot sign locally.
func (c *Credential) Certificate() *Certificate {
	return c.cert
}

// TokenSource exposes the underlying OAuth2 token source.
func (c *Credential) TokenSource() oauth2.TokenSource {
	return c.source
}

// AccessToken performs the source-appropriate OAuth2 exchange.
func (c *Credential) AccessToken(ctx context.Context) (string, error) {
	tok, err := c.source.Token()
	if err != nil {
		return "", newError(ErrCodeInvalidCredential, fmt.Errorf("fetch access token: %w", err))
	}
	if tok.AccessToken == "" {
		return "", newError(ErrCodeInvalidCredential, errors.New("token response missing access_token"))
	}
	return tok.AccessToken, nil
}

// ResolveCredential picks a credential source. Selection order, first match
// wins: explicit key file, gcloud application-default credentials file,
// compute metadata service. Metadata errors are deferred to the first token
// fetch.
func ResolveCredential(ctx context.Context, cfg Config) (*Credential, error) {
	cfg.normalize()

	if path := cfg.CredentialsFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, newError(ErrCodeInvalidCredential, fmt.Errorf("read credentials file %q: %w", path, err))
		}
		cred, err := credentialFromJSON(ctx, data)
		if err != nil {
			return nil, newError(ErrCodeInvalidCredential, fmt.Errorf("parse credentials file %q: %w", path, err))
		}
		return cred, nil
	}

	if path := wellKnownCredentialsFile(); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			cred, err := credentialFromJSON(ctx, data)
			if err != nil {
				return nil, newError(ErrCodeInvalidCredential, fmt.Errorf("parse gcloud credentials %q: %w", path, err))
			}
			return cred, nil
		case !os.IsNotExist(err):
			return nil, newError(ErrCodeInvalidCredential, fmt.Errorf("read gcloud credentials %q: %w", path, err))
		}
	}

	ts := google.ComputeTokenSource("", tokenScopes...)
	return &Credential{source: oauth2.ReuseTokenSource(nil, ts)}, nil
}

func credentialFromJSON(ctx context.Context, data []byte) (*Credential, error) {
	var key struct {
		Type         string `json:"type"`
		ProjectID    string `json:"project_id"`
		ClientEmail  string `json:"client_email"`
		PrivateKey   string `json:"private_key"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, err
	}

	switch key.Type {
	case "service_account":
		jwtCfg, err := google.JWTConfigFromJSON(data, tokenScopes...)
		if err != nil {
			return nil, err
		}
		privateKey, err := parseRSAPrivateKey(key.PrivateKey)
		if err != nil {
			return nil, err
		}
		return &Credential{
			source: jwtCfg.TokenSource(ctx),
			cert: &Certificate{
				ProjectID:   key.ProjectID,
				ClientEmail: key.ClientEmail,
				PrivateKey:  privateKey,
			},
		}, nil

	case "authorized_user":
		if key.ClientID == "" || key.ClientSecret == "" || key.RefreshToken == "" {
			return nil, errors.New("authorized_user key missing client_id, client_secret, or refresh_token")
		}
		conf := &oauth2.Config{
			ClientID:     key.ClientID,
			ClientSecret: key.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       tokenScopes,
		}
		ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: key.RefreshToken})
		return &Credential{source: ts}, nil

	default:
		return nil, fmt.Errorf("unsupported credential type %q", key.Type)
	}
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("private key is not PEM encoded")
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, want RSA", parsed)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func defaultWellKnownCredentialsFile() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return ""
		}
		return filepath.Join(appData, "gcloud", "application_default_credentials.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gcloud", "application_default_credentials.json")
}
