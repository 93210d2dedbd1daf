package dto

type LoginDTO struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type GoogleSignInDTO struct {
	IDToken string `json:"idToken" binding:"required"`
}

// RefreshTokenDTO is optional on the wire: the refresh cookie is used when
// the body carries no token.
type RefreshTokenDTO struct {
	RefreshToken string `json:"refreshToken"`
}

type EmailDTO struct {
	Email string `json:"email" binding:"required"`
}

type ResetPasswordDTO struct {
	Password string `json:"password" binding:"required"`
}

type ChangeMyPasswordDTO struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type VerifyOTPDTO struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}
