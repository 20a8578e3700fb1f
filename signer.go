package authx

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/compute/metadata"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

var metadataEmail = metadata.EmailWithContext

const signBlobHelpURL = "https://firebase.google.com/docs/auth/admin/create-custom-tokens#troubleshooting"

// emulatorAccountID is the fixed issuer identity used for unsigned tokens.
const emulatorAccountID = "firebase-auth-emulator@example.com"

// Signer produces token signatures and names the identity they are issued as.
type Signer interface {
	// SignBytes signs the given payload.
	SignBytes(ctx context.Context, data []byte) ([]byte, error)
	// AccountID returns the service-account email used as token issuer.
	AccountID(ctx context.Context) (string, error)
	// Algorithm returns the JWT alg header value produced by SignBytes.
	Algorithm() string
}

// NewSigner selects a signing strategy for the given credential: emulated when
// an emulator host is configured, local RSA when the credential carries a
// certificate, remote sign-blob otherwise.
func NewSigner(ctx context.Context, cfg Config, cred *Credential) (Signer, error) {
	cfg.normalize()
	if cfg.emulator() {
		return emulatedSigner{}, nil
	}
	if cert := cred.Certificate(); cert != nil {
		return serviceAccountSigner{cert: cert}, nil
	}
	return newIAMSigner(ctx, cfg.ServiceAccountID, option.WithTokenSource(cred.TokenSource()))
}

// serviceAccountSigner signs locally with the certificate's RSA key.
type serviceAccountSigner struct {
	cert *Certificate
}

func (s serviceAccountSigner) SignBytes(_ context.Context, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.cert.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, newError(ErrCodeSignerUnavailable, fmt.Errorf("rsa sign: %w", err))
	}
	return sig, nil
}

func (s serviceAccountSigner) AccountID(context.Context) (string, error) {
	return s.cert.ClientEmail, nil
}

func (s serviceAccountSigner) Algorithm() string {
	return "RS256"
}

// iamSigner delegates signing to the IAM credentials signBlob endpoint.
type iamSigner struct {
	svc *iamcredentials.Service

	mu        sync.Mutex
	accountID string
}

func newIAMSigner(ctx context.Context, serviceAccount string, opts ...option.ClientOption) (*iamSigner, error) {
	svc, err := iamcredentials.NewService(ctx, opts...)
	if err != nil {
		return nil, newError(ErrCodeSignerUnavailable, fmt.Errorf("create iamcredentials client: %w", err))
	}
	return &iamSigner{svc: svc, accountID: serviceAccount}, nil
}

func (s *iamSigner) SignBytes(ctx context.Context, data []byte) ([]byte, error) {
	account, err := s.AccountID(ctx)
	if err != nil {
		return nil, err
	}

	name := "projects/-/serviceAccounts/" + account
	req := &iamcredentials.SignBlobRequest{
		Payload: base64.StdEncoding.EncodeToString(data),
	}
	resp, err := s.svc.Projects.ServiceAccounts.SignBlob(name, req).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, newError(ErrCodeSignerUnavailable, fmt.Errorf(
				"sign blob for %q failed with status %d: %s; see %s",
				account, apiErr.Code, apiErr.Message, signBlobHelpURL))
		}
		return nil, newError(ErrCodeSignerUnavailable, fmt.Errorf("sign blob for %q: %w", account, err))
	}

	sig, err := base64.StdEncoding.DecodeString(resp.SignedBlob)
	if err != nil {
		return nil, newError(ErrCodeSignerUnavailable, fmt.Errorf("decode signed blob: %w", err))
	}
	return sig, nil
}

// AccountID returns the configured service account, discovering the default
// one from the metadata service on first use.
func (s *iamSigner) AccountID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountID != "" {
		return s.accountID, nil
	}

	email, err := metadataEmail(ctx, "default")
	if err != nil {
		return "", newError(ErrCodeSignerUnavailable, fmt.Errorf(
			"discover service account email: %w; initialize with service-account credentials, or set Config.ServiceAccountID", err))
	}
	s.accountID = email
	return email, nil
}

func (s *iamSigner) Algorithm() string {
	return "RS256"
}

// emulatedSigner produces unsigned tokens for the local emulator.
type emulatedSigner struct{}

func (emulatedSigner) SignBytes(context.Context, []byte) ([]byte, error) {
	return []byte{}, nil
}

func (emulatedSigner) AccountID(context.Context) (string, error) {
	return emulatorAccountID, nil
}

func (emulatedSigner) Algorithm() string {
	return "none"
}
