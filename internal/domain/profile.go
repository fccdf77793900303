package domain

import (
	"strings"
	"time"
)

// Profile is the identity record of a community member.
type Profile struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	FullName      string    `json:"fullName"`
	Phone         string    `json:"phone,omitempty"`
	PhoneVerified bool      `json:"phoneVerified"`
	Birthdate     string    `json:"birthdate,omitempty"`
	Email         string    `json:"email"`
	IsApproved    bool      `json:"isApproved"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IdentityClaim is what an unauthenticated session asserts about itself when it
// tries to attach to a known profile. It is never persisted as-is.
type IdentityClaim struct {
	SessionID string `json:"-"`
	TenantID  string `json:"-"`
	Name      string `json:"name"`
	PhoneTail string `json:"phoneTail"`
	Birthdate string `json:"birthdate,omitempty"`
}

// Validate checks the fields the linker requires before touching any store.
func (c IdentityClaim) Validate() error {
	switch {
	case strings.TrimSpace(c.SessionID) == "":
		return ValidationError{Field: "sessionId", Reason: "is required"}
	case strings.TrimSpace(c.TenantID) == "":
		return ValidationError{Field: "tenantId", Reason: "is required"}
	case strings.TrimSpace(c.Name) == "":
		return ValidationError{Field: "name", Reason: "is required"}
	case strings.TrimSpace(c.PhoneTail) == "":
		return ValidationError{Field: "phoneTail", Reason: "is required"}
	}
	return nil
}

// ProfilePatch carries the self-service editable fields. Nil means unchanged.
type ProfilePatch struct {
	FullName  *string `json:"fullName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Birthdate *string `json:"birthdate,omitempty"`
}

// SyntheticEmail returns the placeholder address used as a lookup key for id.
func SyntheticEmail(id string) string {
	return id + "@" + SyntheticEmailDomain
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsSyntheticEmail reports whether email is unusable as a real contact address:
// empty, a placeholder without a domain, a minted anonymous address or one the
// identity provider flagged as unverified.
func IsSyntheticEmail(email string) bool {
	e := NormalizeEmail(email)
	if e == "" || !strings.Contains(e, "@") {
		return true
	}
	if strings.HasSuffix(e, "@"+SyntheticEmailDomain) {
		return true
	}
	return strings.Contains(e, UnverifiedEmailMarker)
}

// Actor is the authenticated member performing an administrative action.
type Actor struct {
	ID       string
	Label    string
	TenantID string
	Role     Role
}
