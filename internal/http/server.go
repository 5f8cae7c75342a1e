package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"fatura/internal/conversation"
	"fatura/internal/core"
	applog "fatura/internal/log"
	"fatura/internal/services"
)

const defaultRateLimit = 120

// Reports is the read side the handlers need.
type Reports interface {
	Now() time.Time
	OpenInvoices(ctx context.Context) ([]core.OpenInvoice, error)
	InvoicesByAccount(ctx context.Context) ([]core.AccountTotal, error)
	Periods(ctx context.Context) (services.PeriodsReport, error)
	Reconcile(ctx context.Context, period core.Period) (services.ReconciliationReport, error)
	Summary(ctx context.Context, period core.Period) (core.PeriodSummary, error)
	Statement(ctx context.Context, period core.Period) (services.StatementReport, error)
}

type Purchases interface {
	Record(ctx context.Context, p core.Purchase) (services.Receipt, error)
}

type Conversations interface {
	Handle(ctx context.Context, id, input string) (conversation.Reply, error)
}

// Deps are the services behind the API. Conversations may be nil, which
// disables the chat endpoint.
type Deps struct {
	Reports            Reports
	Purchases          Purchases
	Conversations      Conversations
	Logger             *applog.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	deps     Deps
	validate *validator.Validate

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}
	if deps.RateLimitPerMinute <= 0 {
		deps.RateLimitPerMinute = defaultRateLimit
	}

	s := &Server{
		deps:     deps,
		validate: newValidator(),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		applog.Middleware(s.deps.Logger),
		applog.RequestIDMiddleware(func(r *http.Request) string { return middleware.GetReqID(r.Context()) }),
		s.accessLog,
		secureHeadersMiddleware(),
		suspiciousRequestMiddleware,
	)

	r.Get("/healthz", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.Limit(s.deps.RateLimitPerMinute, time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) { return extractClientIP(r), nil }),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: "rate limit exceeded"})
			}),
		))

		r.Get("/invoices/open", s.handleOpenInvoices)
		r.Get("/invoices/open/by-account", s.handleInvoicesByAccount)
		r.Get("/periods", s.handlePeriods)
		r.Get("/reconciliation", s.handleReconciliation)
		r.Get("/summary", s.handleSummary)
		r.Get("/statement", s.handleStatement)
		r.Post("/purchases", s.handleCreatePurchase)
		r.Post("/conversations/{id}/messages", s.handleConversationMessage)
	})
	return r
}

// accessLog logs request start and completion with the status written.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		sl := events(r)
		sl.LogHTTPStart(r.Context(), r, clientIP)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		sl.LogHTTPEnd(r.Context(), r, status, time.Since(start).Milliseconds(), clientIP)
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
