package auth

// LoginRequest represents the expected JSON body for user login. Identifier
// accepts either the unique email or the unique username.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required" example:"maria@example.com"`
	Password   string `json:"password" binding:"required" example:"Str0ngP@ss!"`
}

// LoginResponse represents the successful JSON response after login.
type LoginResponse struct {
	AccessToken  string `json:"access_token" example:"eyJhbGciOiJI..."`
	RefreshToken string `json:"refresh_token" example:"4f1trt8s..."`
	Message      string `json:"message" example:"Login successful"`
}

// RegisterRequest represents the expected JSON body for user registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required" example:"maria_cafes"`
	Email    string `json:"email" binding:"required,email" example:"maria@example.com"`
	Password string `json:"password" binding:"required,min=8" example:"Str0ngP@ss!"`
}

// RefreshTokenRequest represents the expected JSON body for refreshing tokens.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse represents the successful JSON response after refreshing tokens.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents the expected JSON body for logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TwoFactorSetupResponse is returned once when 2FA setup is initiated. The
// secret and the backup codes are never retrievable again.
type TwoFactorSetupResponse struct {
	Secret      string   `json:"secret"`
	BackupCodes []string `json:"backup_codes"`
}

// BackupCodeRequest carries a single-use recovery code for redemption.
type BackupCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// GrantRoleRequest is the admin-only role change body.
type GrantRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required" example:"admin"`
}

// Response represents a generic API response for success or error messages.
type Response struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
