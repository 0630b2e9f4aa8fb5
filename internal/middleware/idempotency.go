package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "walletledger:idempotency:v1:"
	cacheTimeout         = 2 * time.Second
)

// replay is what a retried request receives instead of re-running the
// handler. Fingerprint binds the key to the exact request that first used it.
type replay struct {
	Fingerprint string            `json:"fingerprint"`
	Done        bool              `json:"done"`
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Idempotency makes unsafe requests (wallet creation, deposits, transfers)
// safe to retry. The first request carrying an Idempotency-Key reserves the
// key in Redis; its response is stored and replayed verbatim for retries with
// the same method, path and body. Reusing a key for a different request is
// rejected with 422.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		cacheKey := idempotencyPrefix + key
		fingerprint := requestFingerprint(c)
		log := logger.With(slog.String("idempotency_key", key))

		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()

		reservation, err := json.Marshal(replay{Fingerprint: fingerprint})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		reserved, err := cache.SetNX(ctx, cacheKey, reservation, ttl).Result()
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if !reserved {
			return replayStored(ctx, c, cache, cacheKey, fingerprint, log)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}

		// Server errors are not cached so the client can retry them.
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			release(cache, cacheKey)
			return nil
		}

		stored := replay{
			Fingerprint: fingerprint,
			Done:        true,
			Status:      status,
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			if strings.EqualFold(string(k), fiber.HeaderContentLength) {
				return
			}
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			log.Error("failed to encode idempotent response", slog.Any("error", err))
			release(cache, cacheKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer persistCancel()
		// The handler already ran; a lost write only means a retry is rejected as in progress until the TTL passes.
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			log.Error("failed to persist idempotent response", slog.Any("error", err))
		}
		return nil
	}
}

func replayStored(ctx context.Context, c *fiber.Ctx, cache *redis.Client, cacheKey, fingerprint string, log *slog.Logger) error {
	raw, err := cache.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}
	if err != nil {
		log.Error("idempotency lookup failed", slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
	}

	var stored replay
	if err := json.Unmarshal(raw, &stored); err != nil {
		log.Warn("failed to decode stored idempotent response", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.Fingerprint != fingerprint {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused for a different request")
	}
	if !stored.Done {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	for header, value := range stored.Headers {
		c.Set(header, value)
	}
	c.Set("Idempotent-Replayed", "true")
	log.Debug("replaying stored response", slog.Int("status", stored.Status))
	return c.Status(stored.Status).SendString(stored.Body)
}

func requestFingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
