package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit writes one structured line per request. Requests that touch an
// owner's wallets carry the owner and currency so balance changes can be
// traced back to the call that caused them.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if owner := c.Params("owner"); owner != "" {
			attrs = append(attrs, slog.String("owner", owner))
		}
		if currency := c.Params("currency"); currency != "" {
			attrs = append(attrs, slog.String("currency", currency))
		}
		if key := c.Get(idempotencyKeyHeader); key != "" {
			attrs = append(attrs, slog.String("idempotency_key", key))
		}

		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request failed", attrs...)
			return err
		}
		logger.Info("request completed", attrs...)
		return nil
	}
}
