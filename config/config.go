// Package config builds the single configuration object the server is wired
// with. Values come from the process environment, optionally seeded from a
// .env file, and are parsed into typed groups with caarlos0/env.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrMissingMongoURI     = errors.New("MONGODB_URI is required")
	ErrMissingJWTSecrets   = errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required")
	ErrIdenticalJWTSecrets = errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	ErrInvalidTTL          = errors.New("token TTLs must be positive")
	ErrInvalidRateLimit    = errors.New("rate limit attempts and window must be positive")
	ErrUnknownStorage      = errors.New("STORAGE_PROVIDER must be one of gcs, r2, none")
)

type Config struct {
	Server    Server    `envPrefix:"SERVER_"`
	Mongo     Mongo     `envPrefix:"MONGODB_"`
	Auth      Auth
	Admin     Admin     `envPrefix:"ADMIN_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
	Cache     Cache     `envPrefix:"CACHE_"`
	AMQP      AMQP      `envPrefix:"AMQP_"`
	SMTP      SMTP      `envPrefix:"SMTP_"`
	Storage   Storage   `envPrefix:"STORAGE_"`
	Upload    Upload    `envPrefix:"UPLOAD_"`
}

type Server struct {
	Port           string   `env:"PORT" envDefault:"8000"`
	Env            string   `env:"ENV" envDefault:"dev"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

type Mongo struct {
	URI      string `env:"URI"`
	Database string `env:"DATABASE" envDefault:"hostel"`
}

// Auth holds everything the Token Issuer and Auth Service need.
type Auth struct {
	JWTSecret                string        `env:"JWT_SECRET"`
	JWTRefreshSecret         string        `env:"JWT_REFRESH_SECRET"`
	TokenIssuer              string        `env:"JWT_ISSUER" envDefault:"hostelbackend"`
	AccessTTL                time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL               time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	OTPTTL                   time.Duration `env:"OTP_TTL" envDefault:"10m"`
	ResetTokenTTL            time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	VerificationTokenTTL     time.Duration `env:"VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	BcryptCost               int           `env:"BCRYPT_COST" envDefault:"10"`
	RequireEmailVerification bool          `env:"REQUIRE_EMAIL_VERIFICATION" envDefault:"false"`
	RotateRefreshTokens      bool          `env:"ROTATE_REFRESH_TOKENS" envDefault:"true"`
	GoogleClientID           string        `env:"GOOGLE_CLIENT_ID"`
	PublicBaseURL            string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:5173"`
}

type Admin struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	TLS      bool   `env:"TLS" envDefault:"false"`
}

type RateLimit struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Attempts int           `env:"ATTEMPTS" envDefault:"5"`
	Window   time.Duration `env:"WINDOW" envDefault:"15m"`
	Prefix   string        `env:"PREFIX" envDefault:"rl"`
}

type Cache struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	TTL          time.Duration `env:"TTL" envDefault:"30s"`
	Prefix       string        `env:"PREFIX" envDefault:"cache"`
	MaxBodyBytes int           `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

type AMQP struct {
	URL             string `env:"URL"`
	Queue           string `env:"QUEUE" envDefault:"mail.outgoing"`
	ConsumerEnabled bool   `env:"CONSUMER_ENABLED" envDefault:"false"`
}

type SMTP struct {
	Host     string        `env:"HOST"`
	Port     int           `env:"PORT" envDefault:"587"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	From     string        `env:"FROM" envDefault:"no-reply@hostel.local"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

type Storage struct {
	Provider        string `env:"PROVIDER" envDefault:"none"`
	GCSBucket       string `env:"GCS_BUCKET"`
	CredentialsFile string `env:"CREDENTIALS_FILE_LOCATION"`
	R2Bucket        string `env:"R2_BUCKET"`
	R2AccessKeyID   string `env:"R2_ACCESS_KEY_ID"`
	R2SecretKey     string `env:"R2_SECRET_ACCESS_KEY"`
	R2Endpoint      string `env:"R2_ENDPOINT"`
	R2PublicDomain  string `env:"R2_PUBLIC_DOMAIN"`
}

type Upload struct {
	MaxSizeMB         int      `env:"MAX_SIZE_MB" envDefault:"5"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envSeparator:"," envDefault:".jpg,.jpeg,.png,.webp"`
	AllowedMimeTypes  []string `env:"ALLOWED_MIME_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png,image/webp"`
	MaxRoomImages     int      `env:"MAX_ROOM_IMAGES" envDefault:"5"`
}

// Load reads .env (when present), parses the environment and validates the
// result. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error getting env configs: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.Mongo.URI == "" {
		return ErrMissingMongoURI
	}
	if cfg.Auth.JWTSecret == "" || cfg.Auth.JWTRefreshSecret == "" {
		return ErrMissingJWTSecrets
	}
	if cfg.Auth.JWTSecret == cfg.Auth.JWTRefreshSecret {
		return ErrIdenticalJWTSecrets
	}
	if cfg.Auth.AccessTTL <= 0 || cfg.Auth.RefreshTTL <= 0 || cfg.Auth.OTPTTL <= 0 ||
		cfg.Auth.ResetTokenTTL <= 0 || cfg.Auth.VerificationTokenTTL <= 0 {
		return ErrInvalidTTL
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.Attempts < 1 || cfg.RateLimit.Window <= 0) {
		return ErrInvalidRateLimit
	}
	switch cfg.Storage.Provider {
	case "gcs", "r2", "none":
	default:
		return ErrUnknownStorage
	}
	return nil
}

func (cfg Config) IsProduction() bool {
	return cfg.Server.Env == "prod" || cfg.Server.Env == "production"
}
