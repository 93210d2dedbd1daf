package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/config"
	"github.com/princinho/hostelbackend/controllers"
	"github.com/princinho/hostelbackend/database"
	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/middleware"
	"github.com/princinho/hostelbackend/notifier"
	"github.com/princinho/hostelbackend/ratelimit"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/services"
	"github.com/princinho/hostelbackend/storage"
	"github.com/princinho/hostelbackend/tokens"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	roomsCacheGroup  = "rooms"
	eventsCacheGroup = "events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger("api", false).Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.NewLogger("api", cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	ctx = log.WithContext(ctx)

	client, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()
	db := client.Database(cfg.Mongo.Database)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	// A nil Cmdable turns caching off; never store a nil *redis.Client in it.
	var rdb redis.UniversalClient
	if redisClient, err := database.NewRedisClient(ctx, cfg.Redis); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-memory rate limiting and no response cache")
	} else {
		defer redisClient.Close()
		rdb = redisClient
	}

	n, closeNotifier := newNotifier(ctx, cfg, log)
	defer closeNotifier()

	uploader, err := newUploader(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if c, ok := uploader.(io.Closer); ok {
		defer c.Close()
	}

	issuer, err := tokens.NewIssuer(tokens.Options{
		AccessSecret:  cfg.Auth.JWTSecret,
		RefreshSecret: cfg.Auth.JWTRefreshSecret,
		Issuer:        cfg.Auth.TokenIssuer,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		CodeTTL:       cfg.Auth.OTPTTL,
	})
	if err != nil {
		return err
	}

	var google services.GoogleVerifier
	if cfg.Auth.GoogleClientID != "" {
		google = services.NewIDTokenVerifier(cfg.Auth.GoogleClientID)
	}

	users := repository.NewMongoUserStore(db)
	events := repository.NewMongoEventStore(db)
	auth, err := services.NewAuthService(users, issuer, n, google, services.AuthOptions{
		RequireEmailVerification: cfg.Auth.RequireEmailVerification,
		RotateRefreshTokens:      cfg.Auth.RotateRefreshTokens,
		BcryptCost:               cfg.Auth.BcryptCost,
		ResetTokenTTL:            cfg.Auth.ResetTokenTTL,
		VerificationTokenTTL:     cfg.Auth.VerificationTokenTTL,
		OTPTTL:                   cfg.Auth.OTPTTL,
		PublicBaseURL:            cfg.Auth.PublicBaseURL,
	})
	if err != nil {
		return err
	}
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := auth.SeedAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return err
		}
	}

	files := storage.NewImageValidator(cfg.Upload.MaxSizeMB, cfg.Upload.AllowedExtensions, cfg.Upload.AllowedMimeTypes)
	rooms := services.NewRoomService(repository.NewMongoRoomStore(db), uploader, files, cfg.Upload.MaxRoomImages)
	eventSvc := services.NewEventService(events, nil)
	bookings := services.NewBookingService(events, repository.NewMongoBookingStore(db), n, nil)

	cacheOpts := middleware.CacheOptions{Prefix: cfg.Cache.Prefix, TTL: cfg.Cache.TTL, MaxBodyBytes: cfg.Cache.MaxBodyBytes}
	var cacheClient redis.Cmdable
	if cfg.Cache.Enabled && rdb != nil {
		cacheClient = rdb
	}

	routes := controllers.Routes{
		Auth:         controllers.NewAuthController(auth, controllers.CookieOptions{Secure: cfg.IsProduction()}),
		Rooms:        controllers.NewRoomsController(rooms, invalidator(cacheClient, cfg.Cache.Prefix, roomsCacheGroup)),
		Events:       controllers.NewEventsController(eventSvc, invalidator(cacheClient, cfg.Cache.Prefix, eventsCacheGroup)),
		Bookings:     controllers.NewBookingsController(bookings, invalidator(cacheClient, cfg.Cache.Prefix, eventsCacheGroup)),
		Users:        controllers.NewUsersController(auth),
		Authenticate: middleware.Authenticate(issuer, users),
		RoomsCache:   middleware.Cache(cacheClient, cacheOpts, roomsCacheGroup),
		EventsCache:  middleware.Cache(cacheClient, cacheOpts, eventsCacheGroup),
	}
	if cfg.RateLimit.Enabled {
		routes.RateLimit = middleware.RateLimit(newLimiter(rdb, cfg.RateLimit), nil)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins, log))
	routes.Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware(origins []string, log *logger.Logger) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o != "" {
			allowed[o] = true
		}
	}
	log.Info().Strs("origins", origins).Msg("cors allowed origins")
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowed[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", middleware.TraceIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func newLimiter(rdb redis.UniversalClient, cfg config.RateLimit) ratelimit.Limiter {
	opts := ratelimit.Options{Attempts: cfg.Attempts, Window: cfg.Window, Prefix: cfg.Prefix}
	if rdb != nil {
		return ratelimit.NewRedis(rdb, opts)
	}
	return ratelimit.NewMemory(opts)
}

// newNotifier publishes to AMQP when configured and otherwise only logs the
// messages. The returned func releases whatever was opened.
func newNotifier(ctx context.Context, cfg config.Config, log *logger.Logger) (notifier.Notifier, func()) {
	if cfg.AMQP.URL == "" {
		log.Warn().Msg("AMQP_URL not set, outgoing mail is only logged")
		return notifier.NewLogNotifier(log), func() {}
	}

	publisher := notifier.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log.GetChildLogger())
	publisherCtx, stopPublisher := context.WithCancel(context.WithoutCancel(ctx))
	published := make(chan struct{})
	go func() {
		defer close(published)
		publisher.Run(publisherCtx)
	}()
	closePublisher := func() {
		stopPublisher()
		<-published
	}
	if !cfg.AMQP.ConsumerEnabled {
		return publisher, closePublisher
	}

	sender := notifier.NewSMTPSender(notifier.SMTPOptions{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	})
	consumer := notifier.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, sender, log.GetChildLogger())
	consumerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("mail consumer stopped")
		}
	}()
	return publisher, func() {
		cancel()
		<-done
		closePublisher()
	}
}

func newUploader(ctx context.Context, cfg config.Storage) (storage.Uploader, error) {
	switch cfg.Provider {
	case "gcs":
		return storage.NewGCS(ctx, cfg.GCSBucket, cfg.CredentialsFile)
	case "r2":
		return storage.NewR2(ctx, storage.R2Options{
			Bucket:       cfg.R2Bucket,
			AccessKeyID:  cfg.R2AccessKeyID,
			SecretKey:    cfg.R2SecretKey,
			Endpoint:     cfg.R2Endpoint,
			PublicDomain: cfg.R2PublicDomain,
		})
	default:
		return storage.Nop{}, nil
	}
}

// invalidator drops a cache group after a successful write. Failures are
// logged; entries still expire on their own.
func invalidator(rdb redis.Cmdable, prefix, group string) controllers.Invalidator {
	if rdb == nil {
		return nil
	}
	return func(c *gin.Context) {
		ctx := context.WithoutCancel(c.Request.Context())
		if err := middleware.InvalidateCache(ctx, rdb, prefix, group); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("group", group).Msg("cache invalidation failed")
		}
	}
}
