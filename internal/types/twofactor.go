package types

import "time"

// TwoFactorConfig is the per-user 2FA row. At most one per user, enforced by
// an upsert keyed on user_id.
type TwoFactorConfig struct {
	UserID    string     `json:"user_id"`
	Secret    string     `json:"-"`
	Enabled   bool       `json:"enabled"`
	EnabledAt *time.Time `json:"enabled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BackupCode is a single-use recovery code. Only a SHA-256 hash is stored;
// the plaintext is shown once at generation time.
type BackupCode struct {
	ID       string     `json:"id"`
	UserID   string     `json:"-"`
	CodeHash string     `json:"-"`
	UsedAt   *time.Time `json:"used_at,omitempty"`
}
