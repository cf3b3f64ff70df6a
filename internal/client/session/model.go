package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Token is the bearer credential together with the client-side absolute
// expiry computed when it was saved.
type Token struct {
	Value  string
	Expiry time.Time
}

// Expired reports whether the token is no longer usable at now. A token whose
// expiry equals now is already expired.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.Expiry)
}

// tokenRecord is the persisted shape: {"value": "...", "expiry": <epoch millis>}.
type tokenRecord struct {
	Value  string `json:"value"`
	Expiry int64  `json:"expiry"`
}

// AuthTypeLocal marks accounts that sign in with email and password; any other
// value names a federated provider (github, google, ...).
const AuthTypeLocal = "email"

// User is the cached account snapshot returned by the backend.
type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	AuthType         string    `json:"auth_type,omitempty"`
	ProfileImage     string    `json:"profile_image,omitempty"`
	IsVerified       bool      `json:"is_verified"`
	VerifiedAt       Timestamp `json:"verified_at"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        Timestamp `json:"created_at"`
	UpdatedAt        Timestamp `json:"updated_at"`
}

// IsFederated reports whether the account was created through a social
// provider rather than local credentials.
func (u *User) IsFederated() bool {
	return u.AuthType != "" && u.AuthType != AuthTypeLocal
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// VerificationStatus is the account's email-verification state as reported by
// the backend, independent of the cached profile.
type VerificationStatus struct {
	Email      string    `json:"email,omitempty"`
	IsVerified bool      `json:"is_verified"`
	VerifiedAt Timestamp `json:"verified_at"`
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO 8601 form the
// backend emits ("2024-05-01T10:00:00.123456"), which is read as UTC.
// JSON null and "" decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
