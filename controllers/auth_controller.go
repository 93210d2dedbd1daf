package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/dto"
	"github.com/princinho/hostelbackend/middleware"
	"github.com/princinho/hostelbackend/services"
)

const refreshCookie = "refreshToken"

type CookieOptions struct {
	Path   string
	Secure bool
}

type AuthController struct {
	auth   *services.AuthService
	cookie CookieOptions
}

func NewAuthController(auth *services.AuthService, cookie CookieOptions) *AuthController {
	if cookie.Path == "" {
		cookie.Path = "/api/auth"
	}
	return &AuthController{auth: auth, cookie: cookie}
}

func (a *AuthController) setRefreshCookie(c *gin.Context, token string, expiresAt time.Time) {
	sameSite := http.SameSiteLaxMode
	if a.cookie.Secure {
		sameSite = http.SameSiteNoneMode // for cross-site
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     a.cookie.Path,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: sameSite,
	})
}

func (a *AuthController) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     a.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookie.Secure,
	})
}

func (a *AuthController) startSession(c *gin.Context, session services.Session) {
	if !session.RefreshTokenExpiresAt.IsZero() {
		a.setRefreshCookie(c, session.RefreshToken, session.RefreshTokenExpiresAt)
	}
	c.JSON(http.StatusOK, session)
}

// POST /api/auth/signup
func (a *AuthController) Signup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body services.RegisterInput
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		user, err := a.auth.Register(c.Request.Context(), body)
		if err != nil {
			respondError(c, err)
			return
		}
		middleware.RecordAuthEvent("signup", "success")
		c.JSON(http.StatusCreated, gin.H{"user": services.ProfileOf(user)})
	}
}

// POST /api/auth/signin
func (a *AuthController) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "email and password are required")
			return
		}
		session, err := a.auth.Login(c.Request.Context(), body.Email, body.Password)
		if err != nil {
			middleware.RecordAuthEvent("login", "failure")
			respondError(c, err)
			return
		}
		middleware.RecordAuthEvent("login", "success")
		a.startSession(c, session)
	}
}

// POST /api/auth/google
func (a *AuthController) GoogleSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.GoogleSignInDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "idToken is required")
			return
		}
		session, err := a.auth.GoogleSignIn(c.Request.Context(), body.IDToken)
		if err != nil {
			middleware.RecordAuthEvent("google", "failure")
			respondError(c, err)
			return
		}
		middleware.RecordAuthEvent("google", "success")
		a.startSession(c, session)
	}
}

// POST /api/auth/logout
func (a *AuthController) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.clearRefreshCookie(c)
		if err := a.auth.Logout(c.Request.Context(), middleware.UserID(c)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

// POST /api/auth/refresh-token takes the token from the body or the cookie.
func (a *AuthController) Refresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.RefreshTokenDTO
		_ = c.ShouldBindJSON(&body)
		raw := body.RefreshToken
		if raw == "" {
			raw, _ = c.Cookie(refreshCookie)
		}
		if raw == "" {
			c.JSON(http.StatusUnauthorized, dto.NewError(http.StatusUnauthorized, "missing refresh token"))
			return
		}

		session, err := a.auth.RefreshToken(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, services.ErrInvalidSession) {
				a.clearRefreshCookie(c)
			}
			middleware.RecordAuthEvent("refresh", "failure")
			respondError(c, err)
			return
		}
		middleware.RecordAuthEvent("refresh", "success")
		a.startSession(c, session)
	}
}

// POST /api/auth/forgot-password
func (a *AuthController) ForgotPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.EmailDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "email is required")
			return
		}
		if err := a.auth.ForgotPassword(c.Request.Context(), body.Email); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "if the email is registered, a reset link has been sent"})
	}
}

// PUT /api/auth/reset-password/:token
func (a *AuthController) ResetPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ResetPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "password is required")
			return
		}
		if err := a.auth.ResetPassword(c.Request.Context(), c.Param("token"), body.Password); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}

// PUT /api/auth/change-password
func (a *AuthController) ChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.ChangeMyPasswordDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "currentPassword and newPassword are required")
			return
		}
		err := a.auth.ChangePassword(c.Request.Context(), middleware.UserID(c), body.CurrentPassword, body.NewPassword)
		if err != nil {
			respondError(c, err)
			return
		}
		a.clearRefreshCookie(c)
		c.JSON(http.StatusOK, gin.H{"message": "password updated, please sign in again"})
	}
}

// POST /api/auth/send-email-verification-link
func (a *AuthController) SendVerificationLink() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.auth.SendEmailVerificationLink(c.Request.Context(), middleware.UserID(c)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "verification link sent"})
	}
}

// POST /api/auth/resend-email-verification
func (a *AuthController) ResendVerification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.EmailDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "email is required")
			return
		}
		if err := a.auth.ResendEmailVerification(c.Request.Context(), body.Email); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "if the email needs verification, a link has been sent"})
	}
}

// GET /api/auth/verify-email/:token
func (a *AuthController) VerifyEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.auth.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "email verified"})
	}
}

// POST /api/auth/generate-otp
func (a *AuthController) GenerateOTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.EmailDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "email is required")
			return
		}
		if err := a.auth.GenerateOTP(c.Request.Context(), body.Email); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "if the email is registered, a code has been sent"})
	}
}

// POST /api/auth/verify-otp
func (a *AuthController) VerifyOTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body dto.VerifyOTPDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "email and code are required")
			return
		}
		session, err := a.auth.VerifyOTP(c.Request.Context(), body.Email, body.Code)
		if err != nil {
			middleware.RecordAuthEvent("otp", "failure")
			respondError(c, err)
			return
		}
		middleware.RecordAuthEvent("otp", "success")
		c.JSON(http.StatusOK, session)
	}
}

// GET /api/auth/me
func (a *AuthController) Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.auth.Me(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// PATCH /api/auth/me
func (a *AuthController) UpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body services.ProfileInput
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		user, err := a.auth.UpdateProfile(c.Request.Context(), middleware.UserID(c), body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
