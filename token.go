package authx

import "time"

// Token represents the validated claims of an ID token or session cookie.
type Token struct {
	UID      string
	Subject  string
	Issuer   string
	Audience string
	Expires  time.Time
	IssuedAt time.Time
	AuthTime time.Time
	TenantID string

	// Claims holds every payload claim, standard and custom.
	Claims map[string]any
}
