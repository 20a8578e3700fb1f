package authx

import "fmt"

// ErrorCode represents token minting and verification error categories.
type ErrorCode string

const (
	ErrCodeInvalidArgument   ErrorCode = "invalid_argument"
	ErrCodeInvalidCredential ErrorCode = "invalid_credential"
	ErrCodeSignerUnavailable ErrorCode = "signer_unavailable"
	ErrCodeExpired           ErrorCode = "token_expired"
	ErrCodeInvalidSignature  ErrorCode = "invalid_signature"
	ErrCodeUnknownKeyID      ErrorCode = "unknown_key_id"
	ErrCodeInvalidAudience   ErrorCode = "invalid_audience"
	ErrCodeInvalidIssuer     ErrorCode = "invalid_issuer"
	ErrCodeWrongTokenType    ErrorCode = "wrong_token_type"
	ErrCodeMalformedToken    ErrorCode = "malformed_token"
	ErrCodeKeysUnavailable   ErrorCode = "keys_unavailable"
	ErrCodeInternal          ErrorCode = "internal_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeInvalidArgument:   "Invalid argument",
	ErrCodeInvalidCredential: "Invalid credential",
	ErrCodeSignerUnavailable: "Signer unavailable",
	ErrCodeExpired:           "Token expired",
	ErrCodeInvalidSignature:  "Invalid signature",
	ErrCodeUnknownKeyID:      "Unknown key ID",
	ErrCodeInvalidAudience:   "Invalid audience",
	ErrCodeInvalidIssuer:     "Invalid issuer",
	ErrCodeWrongTokenType:    "Wrong token type",
	ErrCodeMalformedToken:    "Malformed token",
	ErrCodeKeysUnavailable:   "Public keys unavailable",
	ErrCodeInternal:          "Internal error",
}

// Error wraps minting and verification errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}
