package entity

import (
	"strings"
	"time"
)

// Account is the aggregate root for the account domain.
// PasswordHash holds the one-way credential transform and never leaves the
// application layer populated.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Phone        string    `json:"phone"`
	AvatarURL    string    `json:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sanitized returns a copy with the credential cleared.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.PasswordHash = ""
	return &cp
}

// AccountPatch carries the mutable fields of an update. Nil means unchanged.
// Identifier and creation time are not patchable.
type AccountPatch struct {
	Username    *string
	Password    *string
	Email       *string
	DisplayName *string
	Phone       *string
	AvatarURL   *string
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.Username == nil && p.Password == nil && p.Email == nil &&
		p.DisplayName == nil && p.Phone == nil && p.AvatarURL == nil
}

// NormalizeUsername trims surrounding whitespace. Comparison is done on the
// folded form returned by UsernameKey.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// UsernameKey is the case-folded form used for uniqueness and lookup.
func UsernameKey(username string) string {
	return strings.ToLower(NormalizeUsername(username))
}
