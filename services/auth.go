// Package services holds the account, room, event and booking rules. HTTP
// concerns stay in controllers; persistence stays in repository.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/notifier"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/tokens"
	"github.com/princinho/hostelbackend/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type AuthOptions struct {
	RequireEmailVerification bool
	RotateRefreshTokens      bool
	BcryptCost               int
	ResetTokenTTL            time.Duration
	VerificationTokenTTL     time.Duration
	OTPTTL                   time.Duration
	PublicBaseURL            string
	NotifyTimeout            time.Duration
}

type RegisterInput struct {
	Username    string     `json:"username" validate:"required,min=3,max=32"`
	FullName    string     `json:"fullName" validate:"required,max=100"`
	Email       string     `json:"email" validate:"required,email,max=254"`
	Password    string     `json:"password" validate:"required,min=8,max=72"`
	Phone       string     `json:"phone" validate:"omitempty,max=32"`
	Address     string     `json:"address" validate:"omitempty,max=200"`
	Gender      string     `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
}

type Profile struct {
	ID              string               `json:"id"`
	Username        string               `json:"username"`
	FullName        string               `json:"fullName"`
	Email           string               `json:"email"`
	Role            models.Role          `json:"role"`
	Status          models.AccountStatus `json:"status"`
	IsEmailVerified bool                 `json:"isEmailVerified"`
}

func ProfileOf(u models.User) Profile {
	return Profile{
		ID:              u.ID.Hex(),
		Username:        u.Username,
		FullName:        u.FullName,
		Email:           u.Email,
		Role:            u.Role,
		Status:          u.Status,
		IsEmailVerified: u.IsEmailVerified,
	}
}

type Session struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt,omitzero"`
	User                  Profile   `json:"user"`
}

// ResetSession is handed out after a successful OTP check and is redeemed
// with ResetPassword.
type ResetSession struct {
	ResetToken string    `json:"resetToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type AuthService struct {
	users    repository.UserStore
	tokens   *tokens.Issuer
	notifier notifier.Notifier
	google   GoogleVerifier
	opts     AuthOptions

	// compared against when the email is unknown so both failures cost
	// one bcrypt comparison
	dummyHash string
}

func NewAuthService(users repository.UserStore, issuer *tokens.Issuer, n notifier.Notifier, google GoogleVerifier, opts AuthOptions) (*AuthService, error) {
	dummy, err := utils.HashPassword("not-a-real-password", opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	return &AuthService{
		users:     users,
		tokens:    issuer,
		notifier:  n,
		google:    google,
		opts:      opts,
		dummyHash: dummy,
	}, nil
}

func (s *AuthService) now() time.Time {
	return s.tokens.Now().UTC()
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)

	verr := validateStruct(in)
	if len(in.Password) > maxPasswordBytes {
		verr.Add("password", passwordRule)
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(s.now()) {
		verr.Add("dateOfBirth", "must not be in the future")
	}
	if err := verr.Err(); err != nil {
		return models.User{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	status := models.StatusActive
	if s.opts.RequireEmailVerification {
		status = models.StatusPendingVerification
	}

	user, err := s.users.Create(ctx, models.User{
		Username:     in.Username,
		FullName:     in.FullName,
		Email:        in.Email,
		Phone:        in.Phone,
		Address:      in.Address,
		Gender:       models.Gender(in.Gender),
		DateOfBirth:  in.DateOfBirth,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       status,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendVerificationLink(ctx, user); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("user_id", user.ID.Hex()).Msg("verification link not sent")
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return Session{}, fmt.Errorf("find user: %w", err)
		}
		_ = utils.CheckPassword(s.dummyHash, password)
		return Session{}, ErrInvalidCredentials
	}

	hash := user.PasswordHash
	if hash == "" {
		// Google-only account.
		hash = s.dummyHash
	}
	if err := utils.CheckPassword(hash, password); err != nil || user.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}

	if user.IsBlocked {
		return Session{}, ErrBlocked
	}
	if s.opts.RequireEmailVerification && !user.IsEmailVerified {
		return Session{}, ErrEmailNotVerified
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) GoogleSignIn(ctx context.Context, idToken string) (Session, error) {
	if s.google == nil {
		return Session{}, fmt.Errorf("%w: google sign-in", ErrUnavailable)
	}
	if strings.TrimSpace(idToken) == "" {
		return Session{}, invalid("idToken", "is required")
	}

	identity, err := s.google.Verify(ctx, idToken)
	if err != nil {
		logger.FromContext(ctx).Info().Err(err).Msg("google id token rejected")
		return Session{}, ErrInvalidCredentials
	}
	if !identity.EmailVerified || identity.Email == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.findOrCreateGoogleUser(ctx, identity)
	if err != nil {
		return Session{}, err
	}
	if user.IsBlocked {
		return Session{}, ErrBlocked
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) findOrCreateGoogleUser(ctx context.Context, id GoogleIdentity) (models.User, error) {
	user, err := s.users.FindByGoogleID(ctx, id.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.User{}, fmt.Errorf("find google user: %w", err)
	}

	user, err = s.users.FindByEmail(ctx, id.Email)
	switch {
	case err == nil:
		// Link the Google identity to the existing password account. Google
		// has verified the address, so the account is verified too.
		active, verified := models.StatusActive, true
		user, err = s.users.Update(ctx, user.ID, repository.UserPatch{
			GoogleID:               &id.Subject,
			IsEmailVerified:        &verified,
			Status:                 &active,
			ClearEmailVerification: true,
		})
		if err != nil {
			return models.User{}, fmt.Errorf("link google account: %w", err)
		}
		return user, nil
	case !errors.Is(err, repository.ErrNotFound):
		return models.User{}, fmt.Errorf("find user: %w", err)
	}

	user, err = s.users.Create(ctx, models.User{
		Username:        usernameFromEmail(id.Email),
		FullName:        id.Name,
		Email:           id.Email,
		GoogleID:        id.Subject,
		Role:            models.RoleUser,
		Status:          models.StatusActive,
		IsEmailVerified: true,
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// Either a concurrent sign-in won the race or the address belongs
		// to a deleted account, which cannot be revived through Google.
		user, err = s.users.FindByEmail(ctx, id.Email)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return models.User{}, ErrInvalidCredentials
		case err != nil:
			return models.User{}, fmt.Errorf("find user: %w", err)
		}
		return user, nil
	}
	if err != nil {
		return models.User{}, fmt.Errorf("create google user: %w", err)
	}
	return user, nil
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "guest"
	}
	return local
}

// startSession issues a token pair and stores the refresh hash, replacing
// any previous one so only the latest login can refresh.
func (s *AuthService) startSession(ctx context.Context, user models.User) (Session, error) {
	access, err := s.tokens.IssueAccessToken(user.ID.Hex(), string(user.Role))
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID.Hex())
	if err != nil {
		return Session{}, err
	}

	hash := tokens.Hash(refresh.Value)
	if _, err := s.users.Update(ctx, user.ID, repository.UserPatch{RefreshTokenHash: &hash}); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}

	return Session{
		AccessToken:           access.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          refresh.Value,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		User:                  ProfileOf(user),
	}, nil
}

// Logout forgets the stored refresh token. Calling it twice is harmless.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return ErrInvalidSession
	}
	_, err = s.users.Update(ctx, id, repository.UserPatch{ClearRefreshToken: true})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (s *AuthService) RefreshToken(ctx context.Context, raw string) (Session, error) {
	claims, err := s.tokens.Verify(raw, tokens.KindRefresh)
	if err != nil {
		return Session{}, ErrInvalidSession
	}
	id, err := bson.ObjectIDFromHex(claims.UserID())
	if err != nil {
		return Session{}, ErrInvalidSession
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidSession
		}
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if user.IsDeleted() {
		return Session{}, ErrInvalidSession
	}
	presented := tokens.Hash(raw)
	if user.RefreshTokenHash == "" || !tokens.Equal(user.RefreshTokenHash, presented) {
		return Session{}, ErrInvalidSession
	}
	if user.IsBlocked {
		return Session{}, ErrBlocked
	}

	access, err := s.tokens.IssueAccessToken(user.ID.Hex(), string(user.Role))
	if err != nil {
		return Session{}, err
	}
	session := Session{
		AccessToken:          access.Value,
		AccessTokenExpiresAt: access.ExpiresAt,
		RefreshToken:         raw,
		User:                 ProfileOf(user),
	}
	if !s.opts.RotateRefreshTokens {
		return session, nil
	}

	refresh, err := s.tokens.IssueRefreshToken(user.ID.Hex())
	if err != nil {
		return Session{}, err
	}
	if err := s.users.SwapRefreshToken(ctx, user.ID, presented, tokens.Hash(refresh.Value)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Another refresh or a logout got there first.
			return Session{}, ErrInvalidSession
		}
		return Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	session.RefreshToken = refresh.Value
	session.RefreshTokenExpiresAt = refresh.ExpiresAt
	return session, nil
}

// ForgotPassword answers the same way whether or not the email is known.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return invalid("email", "must be a valid email address")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.IsBlocked {
		return nil
	}

	reset, err := s.tokens.IssueOpaqueToken(s.opts.ResetTokenTTL)
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, user.ID, repository.UserPatch{
		PasswordReset: &models.SecretToken{Hash: reset.Hash, ExpiresAt: reset.ExpiresAt},
	}); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.link("reset-password", reset.Value)
	s.notify(ctx, notifier.PasswordResetEmail(user.Email, user.FullName, link, s.opts.ResetTokenTTL))
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword("password", newPassword); err != nil {
		return err
	}
	if rawToken == "" {
		return ErrInvalidOrExpiredToken
	}

	hash, err := utils.HashPassword(newPassword, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	lookup := repository.SecretLookup{Field: repository.SecretPasswordReset, Hash: tokens.Hash(rawToken)}
	_, err = s.users.ConsumeSecret(ctx, lookup, s.now(), repository.UserPatch{
		PasswordHash:      &hash,
		ClearRefreshToken: true,
		ClearOTP:          true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validatePassword("newPassword", newPassword); err != nil {
		return err
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == "" || utils.CheckPassword(user.PasswordHash, oldPassword) != nil {
		return ErrInvalidCredentials
	}

	hash, err := utils.HashPassword(newPassword, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.users.Update(ctx, user.ID, repository.UserPatch{
		PasswordHash:       &hash,
		ClearRefreshToken:  true,
		ClearPasswordReset: true,
	}); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// bcrypt only reads the first 72 bytes; the validator counts runes.
const (
	maxPasswordBytes = 72
	passwordRule     = "must be 8 to 72 characters and at most 72 bytes"
)

func validatePassword(field, password string) error {
	if err := validate.Var(password, "required,min=8,max=72"); err != nil || len(password) > maxPasswordBytes {
		return invalid(field, passwordRule)
	}
	return nil
}

func (s *AuthService) SendEmailVerificationLink(ctx context.Context, userID string) error {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return fmt.Errorf("%w: email already verified", ErrConflict)
	}
	return s.sendVerificationLink(ctx, user)
}

// ResendEmailVerification is the unauthenticated variant. It reveals nothing
// about the address.
func (s *AuthService) ResendEmailVerification(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return invalid("email", "must be a valid email address")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.IsEmailVerified || user.IsBlocked {
		return nil
	}
	return s.sendVerificationLink(ctx, user)
}

func (s *AuthService) sendVerificationLink(ctx context.Context, user models.User) error {
	tok, err := s.tokens.IssueOpaqueToken(s.opts.VerificationTokenTTL)
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, user.ID, repository.UserPatch{
		EmailVerification: &models.SecretToken{Hash: tok.Hash, ExpiresAt: tok.ExpiresAt},
	}); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}
	s.notify(ctx, notifier.VerificationEmail(user.Email, user.FullName, s.link("verify-email", tok.Value)))
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return ErrInvalidOrExpiredToken
	}
	verified, active := true, models.StatusActive
	lookup := repository.SecretLookup{Field: repository.SecretEmailVerification, Hash: tokens.Hash(rawToken)}
	_, err := s.users.ConsumeSecret(ctx, lookup, s.now(), repository.UserPatch{
		IsEmailVerified: &verified,
		Status:          &active,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("verify email: %w", err)
	}
	return nil
}

// GenerateOTP answers the same way whether or not the email is known. A new
// code replaces any previous one.
func (s *AuthService) GenerateOTP(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return invalid("email", "must be a valid email address")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if user.IsBlocked {
		return nil
	}

	code, err := s.tokens.IssueShortCode()
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, user.ID, repository.UserPatch{
		OTP: &models.SecretToken{Hash: code.Hash, ExpiresAt: code.ExpiresAt},
	}); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	s.notify(ctx, notifier.OTPEmail(user.Email, user.FullName, code.Value, s.opts.OTPTTL))
	return nil
}

// VerifyOTP consumes the code and returns a password reset token. Unknown
// email, wrong code, expired code and reused code all fail the same way.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (ResetSession, error) {
	code = strings.TrimSpace(code)
	if validate.Var(code, "len=6,numeric") != nil {
		return ResetSession{}, ErrInvalidOrExpiredOTP
	}

	reset, err := s.tokens.IssueOpaqueToken(s.opts.ResetTokenTTL)
	if err != nil {
		return ResetSession{}, err
	}

	lookup := repository.SecretLookup{
		Field: repository.SecretOTP,
		Hash:  tokens.Hash(code),
		Email: utils.NormalizeEmail(email),
	}
	if lookup.Email == "" {
		return ResetSession{}, ErrInvalidOrExpiredOTP
	}
	_, err = s.users.ConsumeSecret(ctx, lookup, s.now(), repository.UserPatch{
		PasswordReset: &models.SecretToken{Hash: reset.Hash, ExpiresAt: reset.ExpiresAt},
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ResetSession{}, ErrInvalidOrExpiredOTP
		}
		return ResetSession{}, fmt.Errorf("verify otp: %w", err)
	}
	return ResetSession{ResetToken: reset.Value, ExpiresAt: reset.ExpiresAt}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (models.User, error) {
	return s.activeUser(ctx, userID)
}

// ProfileInput changes only the fields that are present. An empty phone,
// address or gender clears it.
type ProfileInput struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=32"`
	FullName *string `json:"fullName" validate:"omitempty,min=1,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	Address  *string `json:"address" validate:"omitempty,max=200"`
	Gender   *string `json:"gender"`
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (models.User, error) {
	in.Username, in.FullName = trimPtr(in.Username), trimPtr(in.FullName)
	in.Phone, in.Address = trimPtr(in.Phone), trimPtr(in.Address)

	verr := validateStruct(in)
	var gender *models.Gender
	if in.Gender != nil {
		g := models.Gender(strings.ToLower(strings.TrimSpace(*in.Gender)))
		if g != "" && !g.Valid() {
			verr.Add("gender", "must be one of male female other")
		}
		gender = &g
	}
	if err := verr.Err(); err != nil {
		return models.User{}, err
	}

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	user, err = s.users.Update(ctx, user.ID, repository.UserPatch{
		Username: in.Username,
		FullName: in.FullName,
		Phone:    in.Phone,
		Address:  in.Address,
		Gender:   gender,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (models.User, error) {
	id, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, ErrNotFound
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	if user.IsDeleted() {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

// SetBlocked blocks or unblocks a user. Blocking ends the user's session.
func (s *AuthService) SetBlocked(ctx context.Context, actorID, userID string, blocked bool) (models.User, error) {
	if actorID == userID {
		return models.User{}, fmt.Errorf("%w: cannot block yourself", ErrForbidden)
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	return s.users.Update(ctx, user.ID, repository.UserPatch{
		IsBlocked:         &blocked,
		ClearRefreshToken: blocked,
	})
}

// SetRole promotes or demotes a user. The change applies to the next
// request since roles are read from the stored user.
func (s *AuthService) SetRole(ctx context.Context, actorID, userID, role string) (models.User, error) {
	r := models.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		return models.User{}, invalid("role", "must be user or admin")
	}
	if actorID == userID {
		return models.User{}, fmt.Errorf("%w: cannot change your own role", ErrForbidden)
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	user, err = s.users.Update(ctx, user.ID, repository.UserPatch{Role: &r})
	if err != nil {
		return models.User{}, fmt.Errorf("set role: %w", err)
	}
	return user, nil
}

// DeleteUser marks the user deleted. The document is kept; the email stays
// reserved.
func (s *AuthService) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return fmt.Errorf("%w: cannot delete yourself", ErrForbidden)
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	now, blocked := s.now(), true
	_, err = s.users.Update(ctx, user.ID, repository.UserPatch{
		DeletedAt:              &now,
		IsBlocked:              &blocked,
		ClearRefreshToken:      true,
		ClearPasswordReset:     true,
		ClearEmailVerification: true,
		ClearOTP:               true,
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *AuthService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]models.User, int64, error) {
	return s.users.List(ctx, filter)
}

// SeedAdmin creates the bootstrap admin account when it does not exist yet.
// An existing account with that email is left untouched.
func (s *AuthService) SeedAdmin(ctx context.Context, email, password string) error {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("missing ADMIN_EMAIL or ADMIN_PASSWORD")
	}

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		logger.FromContext(ctx).Info().Str("email", email).Msg("admin user already exists")
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("find admin: %w", err)
	}

	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = s.users.Create(ctx, models.User{
		Username:        usernameFromEmail(email),
		FullName:        "Administrator",
		Email:           email,
		PasswordHash:    hash,
		Role:            models.RoleAdmin,
		Status:          models.StatusActive,
		IsEmailVerified: true,
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateEmail) {
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.FromContext(ctx).Info().Str("email", email).Msg("admin user seeded")
	return nil
}

func (s *AuthService) link(path, token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + path + "/" + token
}

func (s *AuthService) notify(ctx context.Context, msg notifier.Message) {
	if err := deliver(ctx, s.notifier, s.opts.NotifyTimeout, msg); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("kind", string(msg.Kind)).Msg("notification failed")
	}
}
