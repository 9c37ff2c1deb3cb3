package middleware_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime/multipart"
	"net/url"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/crawlmeter/crawlmeter/internal/docstore"
	"github.com/crawlmeter/crawlmeter/internal/ledger"
	"github.com/crawlmeter/crawlmeter/internal/middleware"
	"github.com/crawlmeter/crawlmeter/internal/ratelimit"
)

const (
	testHostAddr  = "192.168.1.1:12345"
	testUserAgent = "TestAgent/1.0"
)

var errMultipartNotSupported = errors.New("multipart not supported in mock")

func newTestAPI() huma.API {
	return humachi.New(chi.NewMux(), huma.DefaultConfig("Test", "1.0.0"))
}

func newTestControl(store docstore.Store) *ratelimit.Control {
	ledgerSvc := ledger.NewService(store, ledger.Records("usage_records"))

	return ratelimit.NewControl(store, ratelimit.Counters("rate_limits"), ledgerSvc, zap.NewNop())
}

// mockHumaContext implements huma.Context for testing.
type mockHumaContext struct {
	headers    map[string]string
	setHeaders map[string]string
	host       string
	written    []byte
	statusCode int
	method     string
	operation  *huma.Operation
}

func newMockHumaContext() *mockHumaContext {
	return &mockHumaContext{
		headers:    make(map[string]string),
		setHeaders: make(map[string]string),
		method:     "GET",
	}
}

func (m *mockHumaContext) Operation() *huma.Operation {
	return m.operation
}
func (m *mockHumaContext) Context() context.Context              { return context.Background() }
func (m *mockHumaContext) TLS() *tls.ConnectionState             { return nil }
func (m *mockHumaContext) Version() huma.ProtoVersion            { return huma.ProtoVersion{} }
func (m *mockHumaContext) Method() string                        { return m.method }
func (m *mockHumaContext) Host() string                          { return m.host }
func (m *mockHumaContext) RemoteAddr() string                    { return m.host }
func (m *mockHumaContext) URL() url.URL                          { return url.URL{} }
func (m *mockHumaContext) Param(_ string) string                 { return "" }
func (m *mockHumaContext) Query(_ string) string                 { return "" }
func (m *mockHumaContext) Header(name string) string             { return m.headers[name] }
func (m *mockHumaContext) EachHeader(_ func(name, value string)) {}
func (m *mockHumaContext) BodyReader() io.Reader                 { return nil }
func (m *mockHumaContext) GetMultipartForm() (*multipart.Form, error) {
	return nil, errMultipartNotSupported
}
func (m *mockHumaContext) SetReadDeadline(_ time.Time) error { return nil }
func (m *mockHumaContext) SetStatus(code int)                { m.statusCode = code }
func (m *mockHumaContext) Status() int                       { return m.statusCode }
func (m *mockHumaContext) AppendHeader(name, value string)   { m.setHeaders[name] = value }
func (m *mockHumaContext) SetHeader(name, value string)      { m.setHeaders[name] = value }
func (m *mockHumaContext) BodyWriter() io.Writer             { return &mockBodyWriter{ctx: m} }

type mockBodyWriter struct {
	ctx *mockHumaContext
}

func (w *mockBodyWriter) Write(p []byte) (n int, err error) {
	w.ctx.written = append(w.ctx.written, p...)

	return len(p), nil
}

func TestIPRateLimiter(t *testing.T) {
	t.Run("allows requests under the limit", func(t *testing.T) {
		control := newTestControl(docstore.NewMemoryStore())
		mw := middleware.IPRateLimiter(newTestAPI(), control, 5, time.Minute, zap.NewNop())

		for i := range 5 {
			ctx := newMockHumaContext()
			ctx.host = testHostAddr
			ctx.headers["User-Agent"] = testUserAgent

			nextCalled := false

			mw(ctx, func(_ huma.Context) {
				nextCalled = true
			})

			assert.True(t, nextCalled, "request %d should be allowed", i+1)
		}
	})

	t.Run("returns 429 with Retry-After when over the limit", func(t *testing.T) {
		control := newTestControl(docstore.NewMemoryStore())
		mw := middleware.IPRateLimiter(newTestAPI(), control, 1, time.Minute, zap.NewNop())

		ctx := newMockHumaContext()
		ctx.host = testHostAddr

		mw(ctx, func(_ huma.Context) {})

		ctx2 := newMockHumaContext()
		ctx2.host = testHostAddr

		nextCalled := false

		mw(ctx2, func(_ huma.Context) {
			nextCalled = true
		})

		assert.False(t, nextCalled, "next should not be called when rate limited")
		assert.Equal(t, 429, ctx2.statusCode)
		assert.NotEmpty(t, ctx2.setHeaders["Retry-After"])
		assert.Contains(t, string(ctx2.written), "rate limit")
	})

	t.Run("limits per client IP", func(t *testing.T) {
		control := newTestControl(docstore.NewMemoryStore())
		mw := middleware.IPRateLimiter(newTestAPI(), control, 1, time.Minute, zap.NewNop())

		first := newMockHumaContext()
		first.headers["X-Forwarded-For"] = "203.0.113.1"

		mw(first, func(_ huma.Context) {})

		other := newMockHumaContext()
		other.headers["X-Forwarded-For"] = "203.0.113.2"

		nextCalled := false

		mw(other, func(_ huma.Context) {
			nextCalled = true
		})

		assert.True(t, nextCalled, "a different client IP has its own counter")
	})

	t.Run("forwarded IP wins over the host", func(t *testing.T) {
		control := newTestControl(docstore.NewMemoryStore())
		mw := middleware.IPRateLimiter(newTestAPI(), control, 1, time.Minute, zap.NewNop())

		first := newMockHumaContext()
		first.host = "10.0.0.1:12345"
		first.headers["X-Forwarded-For"] = "203.0.113.1, 70.41.3.18"

		mw(first, func(_ huma.Context) {})

		second := newMockHumaContext()
		second.host = "10.0.0.2:54321"
		second.headers["X-Forwarded-For"] = "203.0.113.1"

		nextCalled := false

		mw(second, func(_ huma.Context) {
			nextCalled = true
		})

		assert.False(t, nextCalled, "the first forwarded IP identifies the client, not the host")
		assert.Equal(t, 429, second.statusCode)
	})

	t.Run("store failures return 500, never 429", func(t *testing.T) {
		control := newTestControl(docstore.NewDisabled())
		mw := middleware.IPRateLimiter(newTestAPI(), control, 1, time.Minute, zap.NewNop())

		ctx := newMockHumaContext()
		ctx.host = testHostAddr

		nextCalled := false

		mw(ctx, func(_ huma.Context) {
			nextCalled = true
		})

		assert.False(t, nextCalled)
		assert.Equal(t, 500, ctx.statusCode)
		assert.Empty(t, ctx.setHeaders["Retry-After"])
	})
}
