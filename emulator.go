package authx

// EmulatedClaims holds attributes used when minting synthetic unsigned ID
// tokens for the local emulator.
type EmulatedClaims struct {
	ProjectID string
	UID       string
	TenantID  string
	Claims    map[string]any
}

// DefaultEmulatedClaims returns a baseline set of claims suitable for local
// development against the emulator.
func DefaultEmulatedClaims(projectID string) EmulatedClaims {
	return EmulatedClaims{
		ProjectID: projectID,
		UID:       "emulator-user",
	}
}

// UnsignedIDToken renders the claims as an unsigned ID token. Only a Verifier
// configured with an emulator host accepts the result.
func (e EmulatedClaims) UnsignedIDToken() (string, error) {
	now := timeNow().Unix()
	claims := map[string]any{
		"iss":       idTokenIssuerPrefix + e.ProjectID,
		"aud":       e.ProjectID,
		"sub":       e.UID,
		"iat":       now,
		"exp":       now + int64(tokenLifetime.Seconds()),
		"auth_time": now,
	}
	if e.TenantID != "" {
		claims["firebase"] = map[string]any{"tenant": e.TenantID}
	}
	for k, v := range e.Claims {
		if _, ok := claims[k]; !ok {
			claims[k] = v
		}
	}

	header := struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}{Alg: "none", Typ: "JWT"}

	headerSeg, err := encodeSegment(header)
	if err != nil {
		return "", newError(ErrCodeInternal, err)
	}
	payloadSeg, err := encodeSegment(claims)
	if err != nil {
		return "", newError(ErrCodeInternal, err)
	}
	return headerSeg + "." + payloadSeg + ".", nil
}
