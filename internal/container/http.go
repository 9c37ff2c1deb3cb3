package container

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"

	"github.com/crawlmeter/crawlmeter/internal/analytics"
	"github.com/crawlmeter/crawlmeter/internal/docstore"
	"github.com/crawlmeter/crawlmeter/internal/events"
	"github.com/crawlmeter/crawlmeter/internal/handlers"
	"github.com/crawlmeter/crawlmeter/internal/ledger"
	"github.com/crawlmeter/crawlmeter/internal/middleware"
	"github.com/crawlmeter/crawlmeter/internal/ratelimit"
)

type redisPinger struct {
	client *redis.Client
}

func (r redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// HTTPPackage provides the chi router and the huma API with all routes and
// middleware registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		control := do.MustInvoke[*ratelimit.Control](i)
		ledgerSvc := do.MustInvoke[*ledger.Service](i)
		publishUsage := do.MustInvoke[events.Publish[analytics.UsageRecordedEvent]](i)

		api := humachi.New(router, huma.DefaultConfig("crawlmeter", "1.0.0"))

		api.UseMiddleware(middleware.RequestMeta(api))

		if opts.IPLimit > 0 {
			window := time.Duration(opts.IPLimitWindowSeconds) * time.Second
			api.UseMiddleware(middleware.IPRateLimiter(api, control, opts.IPLimit, window, logger))
		}

		admit := handlers.NewAdmitHandler(control, publishUsage, logger)
		usage := handlers.NewUsageHandler(ledgerSvc, logger)
		health := handlers.NewHealthHandler(healthChecks(i, opts))

		handlers.RegisterRoutes(api, admit, usage, health)

		return api, nil
	})
}

func healthChecks(i *do.Injector, opts *Options) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{
		"redis": redisPinger{client: do.MustInvoke[*redis.Client](i)},
	}

	switch opts.Backend {
	case "mongo":
		store, _ := do.MustInvoke[docstore.Store](i).(*docstore.MongoStore)
		if store != nil {
			checks["mongo"] = store
		}
	case "postgres":
		checks["postgres"] = do.MustInvoke[*pgxpool.Pool](i)
	}

	return checks
}
