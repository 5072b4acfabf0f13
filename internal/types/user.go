package types

import "time"

// UserAuth represents the core user entity in the domain.
//
// A user always carries at least one authentication method: either a bcrypt
// password hash or a federated provider identity. Users are never hard
// deleted; IsActive is flipped instead.
type UserAuth struct {
	ID              string     `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"` // Unique identifier (UUID).
	Username        string     `json:"username" example:"maria_cafes"`                    // Unique username.
	Email           string     `json:"email" example:"maria@example.com"`                 // Unique email address used for login.
	PasswordHash    *string    `json:"-"`                                                 // Hashed password (never exposed, nil for federated-only accounts).
	Role            string     `json:"role" example:"user"`                               // User role ('user' or 'admin').
	Provider        *string    `json:"provider,omitempty"`                                // Federated identity provider name (e.g. 'google').
	ProviderID      *string    `json:"-"`                                                 // Provider-asserted account id.
	DisplayName     *string    `json:"display_name,omitempty"`
	AvatarURL       *string    `json:"avatar_url,omitempty"`
	Bio             *string    `json:"bio,omitempty"`
	Location        *string    `json:"location,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EmailVerified reports whether the user confirmed their email address.
func (u *UserAuth) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
