package authx

import (
	"errors"
	"os"
	"time"
)

const (
	defaultClockSkew   = 30 * time.Second
	defaultHTTPTimeout = 5 * time.Second

	// tokenLifetime is the fixed validity window of minted custom tokens.
	tokenLifetime = time.Hour

	// maxUIDLength bounds uid arguments and the sub claim of verified tokens.
	maxUIDLength = 128

	// CustomTokenAudience is the fixed aud claim of minted custom tokens.
	CustomTokenAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"

	idTokenCertsURL       = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	sessionCookieCertsURL = "https://www.googleapis.com/identitytoolkit/v3/relyingparty/publicKeys"

	idTokenIssuerPrefix       = "https://securetoken.google.com/"
	sessionCookieIssuerPrefix = "https://session.firebase.google.com/"

	emulatorHostEnv    = "FIREBASE_AUTH_EMULATOR_HOST"
	credentialsFileEnv = "GOOGLE_APPLICATION_CREDENTIALS"
)

// Config describes the project whose tokens are minted and verified.
type Config struct {
	// ProjectID binds verification: verified tokens must carry it as audience
	// and in their issuer. Required.
	ProjectID string

	// ServiceAccountID, when set, skips metadata discovery for remote signing.
	ServiceAccountID string

	// TenantID scopes minted custom tokens and verified audiences to a tenant.
	TenantID string

	// CredentialsFile points at a service-account or authorized-user JSON key.
	// Falls back to GOOGLE_APPLICATION_CREDENTIALS when empty.
	CredentialsFile string

	// EmulatorHost switches signing and verification to unsigned emulator
	// tokens. Falls back to FIREBASE_AUTH_EMULATOR_HOST when empty.
	EmulatorHost string

	ClockSkew   time.Duration
	HTTPTimeout time.Duration
}

// normalize sets default values for optional fields.
func (c *Config) normalize() {
	if c.CredentialsFile == "" {
		c.CredentialsFile = os.Getenv(credentialsFileEnv)
	}
	if c.EmulatorHost == "" {
		c.EmulatorHost = os.Getenv(emulatorHostEnv)
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = defaultClockSkew
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

// validate ensures the configuration is usable.
func (c Config) validate() error {
	if c.ProjectID == "" {
		return errors.New("project id is required")
	}
	return nil
}

func (c Config) emulator() bool {
	return c.EmulatorHost != ""
}
