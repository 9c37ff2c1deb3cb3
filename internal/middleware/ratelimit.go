package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/crawlmeter/crawlmeter/internal/ratelimit"
)

// IPRateLimiter limits each client IP to occurrence requests per window,
// driven by the window-based admission entry point. Denials become 429s with
// a Retry-After header; store failures become 500s, never 429s.
func IPRateLimiter(
	api huma.API,
	control *ratelimit.Control,
	occurrence int,
	window time.Duration,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		subject := extractClientIP(ctx)

		_, err := control.AdmitWindow(ctx.Context(), subject, []string{"http"}, window, occurrence)
		if err != nil {
			var denied *ratelimit.Error
			if errors.As(err, &denied) {
				ctx.SetHeader("Retry-After", fmt.Sprintf("%d", denied.Seconds()))
				_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests,
					fmt.Sprintf("rate limit exceeded, retry after %ds", denied.Seconds()))

				return
			}

			logger.Error("admission check failed",
				zap.String("clientIp", subject),
				zap.Error(err),
			)
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		next(ctx)
	}
}
