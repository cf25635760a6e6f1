package webhook

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/m3rciful/shopbot/core/buildinfo"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/payment"
)

// MaxBody caps webhook request bodies.
const MaxBody = 64 << 10

// Options configures the HTTP surface.
type Options struct {
	ShopName     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handler serves provider webhooks, checkout landing pages and a health probe.
type Handler struct {
	receiver  *Receiver
	verifiers map[domain.Method]payment.Verifier
	opts      Options
}

// NewHandler builds the chi router. Only methods with a verifier get a
// webhook route.
func NewHandler(receiver *Receiver, verifiers map[domain.Method]payment.Verifier, opts Options) http.Handler {
	h := &Handler{receiver: receiver, verifiers: verifiers, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/payment/success", h.landing("Payment successful. Go back to Telegram to continue with your order."))
	r.Get("/payment/cancel", h.landing("Payment cancelled. Go back to Telegram to choose another method."))
	r.Route("/webhooks", func(r chi.Router) {
		for method := range verifiers {
			r.Post("/"+string(method), h.webhook(method))
		}
	})
	return otelhttp.NewHandler(r, "shopbot.http")
}

// NewServer wraps handler in an http.Server with finite timeouts.
func NewServer(addr string, handler http.Handler, opts Options) *http.Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", srv.Addr, err)
	}
	logger.Info(ctx, logger.CompHTTP, "server.start", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	logger.Info(ctx, logger.CompHTTP, "server.stop")
	return nil
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok "+buildinfo.String())
}

func (h *Handler) landing(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := h.opts.ShopName
		if title == "" {
			title = "Shop"
		}
		body := "<h2>" + html.EscapeString(message) + "</h2>"
		if id := r.URL.Query().Get("order_id"); id != "" {
			body += "<p>Order " + html.EscapeString(id) + "</p>"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!doctype html><title>%s</title>%s", html.EscapeString(title), body)
	}
}

func (h *Handler) webhook(method domain.Method) http.HandlerFunc {
	verifier := h.verifiers[method]
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBody))
		if err != nil {
			logger.Warn(ctx, logger.CompHTTP, "webhook.body", logger.Provider(string(method)), logger.Err(err))
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		evt, err := verifier.Parse(r, body)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidSignature) {
				logger.Warn(ctx, logger.CompHTTP, "webhook.signature", logger.Provider(string(method)), logger.Err(err))
				http.Error(w, "invalid signature", http.StatusBadRequest)
				return
			}
			// Authentic but unreadable: acknowledge so the provider stops retrying.
			logger.Warn(ctx, logger.CompHTTP, "webhook.parse", logger.Provider(string(method)), logger.Err(err))
			w.WriteHeader(http.StatusOK)
			return
		}

		outcome, err := h.receiver.Apply(ctx, evt)
		if err != nil {
			logger.Error(ctx, logger.CompHTTP, "webhook.apply", logger.Provider(string(method)), slog.String("event_type", evt.Type), logger.Err(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		logger.Info(ctx, logger.CompHTTP, "webhook.handled",
			logger.Provider(string(method)),
			slog.String("event_type", evt.Type),
			slog.String("outcome", string(outcome)),
		)
		w.WriteHeader(http.StatusOK)
	}
}

// requestLogger tags the request context with chi's request id and logs one
// line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Event(ctx, logger.CompHTTP, level, "request.handled",
			slog.String("http_method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
