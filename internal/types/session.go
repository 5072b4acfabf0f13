package types

import "github.com/golang-jwt/jwt/v5"

// Claims are the identity facts carried by an access token. They are minted
// by the auth service after credential or federated verification and read by
// the authenticate middleware; nothing else writes them.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// SessionView is the read-only authorization surface handed to downstream
// consumers. It is a pure function of the claims in context.
type SessionView struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	UserID          string `json:"user_id,omitempty"`
	Role            string `json:"role,omitempty"`
	IsAdmin         bool   `json:"is_admin"`
	IsUser          bool   `json:"is_user"`
}
