package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/hostelbackend/logger"
	"github.com/redis/go-redis/v9"
)

type CacheOptions struct {
	Prefix       string
	TTL          time.Duration
	MaxBodyBytes int
}

// captureWriter copies the response body while forwarding it to the client.
type captureWriter struct {
	gin.ResponseWriter
	buf   bytes.Buffer
	limit int
	over  bool
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.capture(b)
	return cw.ResponseWriter.Write(b)
}

func (cw *captureWriter) WriteString(s string) (int, error) {
	cw.capture([]byte(s))
	return cw.ResponseWriter.WriteString(s)
}

func (cw *captureWriter) capture(b []byte) {
	if cw.over {
		return
	}
	if cw.limit > 0 && cw.buf.Len()+len(b) > cw.limit {
		cw.over = true
		cw.buf.Reset()
		return
	}
	cw.buf.Write(b)
}

func cacheKey(prefix, group string, c *gin.Context) string {
	sum := sha1.Sum([]byte(c.FullPath() + "?" + c.Request.URL.RawQuery))
	return fmt.Sprintf("%s:%s:%x", prefix, group, sum[:])
}

// encodePayload packs [4 bytes status][4 bytes header length][header json][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (int, http.Header, []byte, bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// Cache serves anonymous GET requests from Redis and stores 200 responses
// under group so writes can drop them with InvalidateCache. A nil client
// disables caching.
func Cache(rdb redis.Cmdable, opts CacheOptions, group string) gin.HandlerFunc {
	if rdb == nil {
		return func(c *gin.Context) { c.Next() }
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || c.GetHeader("Authorization") != "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := cacheKey(opts.Prefix, group, c)

		if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
			if status, hdr, body, ok := decodePayload(bs); ok {
				for k, vals := range hdr {
					if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, TraceIDHeader) {
						continue
					}
					for _, v := range vals {
						c.Writer.Header().Add(k, v)
					}
				}
				c.Header("X-Cache", "HIT")
				c.Data(status, hdr.Get("Content-Type"), body)
				c.Abort()
				return
			}
		}

		cw := &captureWriter{ResponseWriter: c.Writer, limit: opts.MaxBodyBytes}
		c.Writer = cw
		c.Header("X-Cache", "MISS")
		c.Next()

		if cw.Status() != http.StatusOK || cw.over {
			return
		}
		hdr := cw.Header().Clone()
		hdr.Del("X-Cache")
		payload, err := encodePayload(cw.Status(), hdr, cw.buf.Bytes())
		if err != nil {
			return
		}
		// the request context may already be cancelled
		if err := rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("failed to store cached response")
		}
	}
}

// InvalidateCache drops every cached response stored under group.
func InvalidateCache(ctx context.Context, rdb redis.Cmdable, prefix, group string) error {
	if rdb == nil {
		return nil
	}
	pattern := fmt.Sprintf("%s:%s:*", prefix, group)
	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cache keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
