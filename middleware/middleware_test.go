package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/logger"
	"github.com/princinho/hostelbackend/models"
	"github.com/princinho/hostelbackend/ratelimit"
	"github.com/princinho/hostelbackend/repository"
	"github.com/princinho/hostelbackend/tokens"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type usersByID map[bson.ObjectID]models.User

func (u usersByID) FindByID(_ context.Context, id bson.ObjectID) (models.User, error) {
	user, ok := u[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

func newIssuer(t *testing.T, now func() time.Time) *tokens.Issuer {
	t.Helper()
	issuer, err := tokens.NewIssuer(tokens.Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		CodeTTL:       time.Minute,
		Now:           now,
	})
	require.NoError(t, err)
	return issuer
}

func protectedRouter(issuer *tokens.Issuer, users UserFinder, roles ...models.Role) (*gin.Engine, *int) {
	calls := 0
	r := gin.New()
	chain := []gin.HandlerFunc{Authenticate(issuer, users)}
	if len(roles) > 0 {
		chain = append(chain, RequireRole(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		calls++
		user, ok := CurrentUser(c)
		if !ok || user.ID.Hex() != UserID(c) {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": UserID(c)})
	})
	r.GET("/private", chain...)
	return r, &calls
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer := newIssuer(t, clock)

	active := models.User{ID: bson.NewObjectID(), Role: models.RoleUser}
	blocked := models.User{ID: bson.NewObjectID(), Role: models.RoleUser, IsBlocked: true}
	deletedAt := now
	deleted := models.User{ID: bson.NewObjectID(), Role: models.RoleUser, DeletedAt: &deletedAt}
	users := usersByID{active.ID: active, blocked.ID: blocked, deleted.ID: deleted}

	token := func(u models.User) string {
		tok, err := issuer.IssueAccessToken(u.ID.Hex(), string(u.Role))
		require.NoError(t, err)
		return tok.Value
	}
	refresh, err := issuer.IssueRefreshToken(active.ID.Hex())
	require.NoError(t, err)
	stranger, err := issuer.IssueAccessToken(bson.NewObjectID().Hex(), "user")
	require.NoError(t, err)

	tests := []struct {
		name   string
		bearer string
		status int
		called bool
	}{
		{name: "valid", bearer: token(active), status: http.StatusOK, called: true},
		{name: "missing", bearer: "", status: http.StatusUnauthorized},
		{name: "garbage", bearer: "abc.def.ghi", status: http.StatusUnauthorized},
		{name: "refresh token", bearer: refresh.Value, status: http.StatusUnauthorized},
		{name: "unknown user", bearer: stranger.Value, status: http.StatusUnauthorized},
		{name: "deleted user", bearer: token(deleted), status: http.StatusUnauthorized},
		{name: "blocked user", bearer: token(blocked), status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, calls := protectedRouter(issuer, users)
			w := get(r, "/private", tt.bearer)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.called, *calls == 1)
		})
	}

	t.Run("expired", func(t *testing.T) {
		tok := token(active)
		now = now.Add(time.Minute)
		r, calls := protectedRouter(issuer, users)
		w := get(r, "/private", tok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, *calls)
	})
}

type failingUsers struct{}

func (failingUsers) FindByID(context.Context, bson.ObjectID) (models.User, error) {
	return models.User{}, errors.New("db down")
}

func TestAuthenticateStoreFailure(t *testing.T) {
	issuer := newIssuer(t, nil)
	tok, err := issuer.IssueAccessToken(bson.NewObjectID().Hex(), "user")
	require.NoError(t, err)

	r, calls := protectedRouter(issuer, failingUsers{})
	w := get(r, "/private", tok.Value)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, *calls)
}

func TestRequireRole(t *testing.T) {
	issuer := newIssuer(t, nil)
	admin := models.User{ID: bson.NewObjectID(), Role: models.RoleAdmin}
	user := models.User{ID: bson.NewObjectID(), Role: models.RoleUser}
	users := usersByID{admin.ID: admin, user.ID: user}

	r, calls := protectedRouter(issuer, users, models.RoleAdmin)

	adminTok, err := issuer.IssueAccessToken(admin.ID.Hex(), "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(r, "/private", adminTok.Value).Code)

	// a stale admin claim does not help a user whose stored role is user
	userTok, err := issuer.IssueAccessToken(user.ID.Hex(), "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "/private", userTok.Value).Code)
	assert.Equal(t, 1, *calls)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemory(ratelimit.Options{Attempts: 2, Window: time.Minute}).
		WithClock(func() time.Time { return now })

	r := gin.New()
	r.POST("/login", RateLimit(limiter, nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	post := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, post("10.0.0.1").Code)
	w := post("10.0.0.1")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = post("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// other clients have their own budget
	assert.Equal(t, http.StatusNoContent, post("10.0.0.2").Code)

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusNoContent, post("10.0.0.1").Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(brokenLimiter{}, nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	opts := CacheOptions{Prefix: "cache", TTL: time.Minute}

	hits := 0
	r := gin.New()
	r.GET("/rooms", Cache(rdb, opts, "rooms"), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.GET("/missing", Cache(rdb, opts, "rooms"), func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	w := get(r, "/rooms?page=1", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())

	w = get(r, "/rooms?page=1", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"hits":1}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	// different query, different entry
	w = get(r, "/rooms?page=2", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	// authenticated requests bypass the cache
	w = get(r, "/rooms?page=1", "token")
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"hits":3}`, w.Body.String())

	get(r, "/missing", "")
	w = get(r, "/missing", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	require.NoError(t, InvalidateCache(context.Background(), rdb, "cache", "rooms"))
	w = get(r, "/rooms?page=1", "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"hits":4}`, w.Body.String())
}

func TestCacheDisabledWithoutRedis(t *testing.T) {
	r := gin.New()
	r.GET("/rooms", Cache(nil, CacheOptions{}, "rooms"), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := get(r, "/rooms", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.NoError(t, InvalidateCache(context.Background(), nil, "cache", "rooms"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
}

func TestRequestLoggerSetsTraceID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(logger.Nop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/ping", "")
	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "trace-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get(TraceIDHeader))
}

func TestMetricsCountsByRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/rooms/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/rooms/:id", "200"))
	get(r, "/rooms/abc", "")
	get(r, "/rooms/def", "")
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/rooms/:id", "200"))
	assert.Equal(t, before+2, after)
}
