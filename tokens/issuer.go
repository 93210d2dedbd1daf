// Package tokens issues and verifies the credentials handed to clients:
// signed access and refresh JWTs, short numeric codes and opaque link tokens.
// Only SHA-256 hashes of refresh tokens, codes and link tokens are stored.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrExpired           = errors.New("token expired")
	ErrMalformed         = errors.New("token malformed")
	ErrSignatureMismatch = errors.New("token signature mismatch")
	ErrInvalidOptions    = errors.New("invalid token issuer options")
)

type Claims struct {
	Role string `json:"role,omitempty"`
	Type Kind   `json:"typ"`
	jwt.RegisteredClaims
}

func (c Claims) UserID() string {
	return c.Subject
}

// Token is a signed JWT with its expiry.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Secret is a raw single-use value, its storage hash and expiry. Value is
// sent to the user and never persisted.
type Secret struct {
	Value     string
	Hash      string
	ExpiresAt time.Time
}

type Options struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CodeTTL       time.Duration
	Now           func() time.Time
}

type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	codeTTL       time.Duration
	now           func() time.Time
}

func NewIssuer(opts Options) (*Issuer, error) {
	if opts.AccessSecret == "" || opts.RefreshSecret == "" || opts.AccessSecret == opts.RefreshSecret {
		return nil, fmt.Errorf("%w: access and refresh secrets must be set and differ", ErrInvalidOptions)
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 || opts.CodeTTL <= 0 {
		return nil, fmt.Errorf("%w: ttls must be positive", ErrInvalidOptions)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		accessSecret:  []byte(opts.AccessSecret),
		refreshSecret: []byte(opts.RefreshSecret),
		issuer:        opts.Issuer,
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		codeTTL:       opts.CodeTTL,
		now:           now,
	}, nil
}

func (i *Issuer) Now() time.Time {
	return i.now()
}

func (i *Issuer) IssueAccessToken(userID, role string) (Token, error) {
	return i.sign(KindAccess, userID, role, i.accessTTL, i.accessSecret)
}

func (i *Issuer) IssueRefreshToken(userID string) (Token, error) {
	return i.sign(KindRefresh, userID, "", i.refreshTTL, i.refreshSecret)
}

func (i *Issuer) sign(kind Kind, userID, role string, ttl time.Duration, secret []byte) (Token, error) {
	now := i.now()
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := Claims{
		Role: role,
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	// exp is carried in whole seconds.
	return Token{Value: signed, ID: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, issuer, kind and expiry. A token is rejected at
// its expiry instant.
func (i *Issuer) Verify(raw string, kind Kind) (Claims, error) {
	secret := i.accessSecret
	if kind == KindRefresh {
		secret = i.refreshSecret
	}

	var claims Claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, ErrSignatureMismatch
		}
	}

	if claims.Type != kind || claims.Subject == "" {
		return Claims{}, ErrSignatureMismatch
	}
	if !i.now().Before(claims.ExpiresAt.Time) {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

// IssueShortCode returns a uniformly random 6-digit code.
func (i *Issuer) IssueShortCode() (Secret, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return Secret{}, fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())
	return Secret{Value: code, Hash: Hash(code), ExpiresAt: i.now().Add(i.codeTTL)}, nil
}

// IssueOpaqueToken returns 32 random bytes, base64url encoded.
func (i *Issuer) IssueOpaqueToken(ttl time.Duration) (Secret, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Secret{}, fmt.Errorf("generate token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return Secret{Value: raw, Hash: Hash(raw), ExpiresAt: i.now().Add(ttl)}, nil
}

func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Equal compares two hashes in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
