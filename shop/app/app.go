// Package app assembles the storefront from configuration and runs the bot
// and the payment webhook server side by side.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/shopbot/core/bootstrap"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
	"github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/core/telegram/ui"
	"github.com/m3rciful/shopbot/shop/bot"
	"github.com/m3rciful/shopbot/shop/cart"
	"github.com/m3rciful/shopbot/shop/catalog"
	"github.com/m3rciful/shopbot/shop/checkout"
	"github.com/m3rciful/shopbot/shop/config"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/mailer"
	"github.com/m3rciful/shopbot/shop/notify"
	"github.com/m3rciful/shopbot/shop/orders"
	"github.com/m3rciful/shopbot/shop/payment"
	"github.com/m3rciful/shopbot/shop/payment/paypal"
	"github.com/m3rciful/shopbot/shop/payment/stripe"
	"github.com/m3rciful/shopbot/shop/storage"
	"github.com/m3rciful/shopbot/shop/storage/memory"
	"github.com/m3rciful/shopbot/shop/storage/postgres"
	shopredis "github.com/m3rciful/shopbot/shop/storage/redis"
	"github.com/m3rciful/shopbot/shop/webhook"

	tele "gopkg.in/telebot.v4"
)

const textRateLimited = "Too many messages, please slow down."

// Options override infrastructure, mostly for tests.
type Options struct {
	Bootstrap   func(context.Context, bootstrap.Options) (*bootstrap.Result, error)
	RunTelegram func(context.Context, tg.RunOptions) error
	// Mailer replaces the SMTP sender built from configuration.
	Mailer mailer.Sender
	// PaymentClient is used for Stripe and PayPal API calls.
	PaymentClient *http.Client
	// Offline builds the Telegram bot without contacting the Bot API.
	Offline bool
}

// App is the assembled storefront.
type App struct {
	cfg         *config.Config
	infra       *bootstrap.Result
	runTelegram func(context.Context, tg.RunOptions) error
	offline     bool

	registry *tg.Registry
	bot      *bot.Bot
	machine  *checkout.Machine
	tracker  *orders.Tracker
	handler  http.Handler
	server   *http.Server
}

// Bootstrap adapts New to the command runner.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.App, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(ctx, cfg, Options{})
}

// New opens the configured backends and wires every component.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if opts.Bootstrap == nil {
		opts.Bootstrap = bootstrap.Run
	}
	if opts.RunTelegram == nil {
		opts.RunTelegram = tg.RunTelegram
	}

	infra, err := opts.Bootstrap(ctx, bootstrapOptions(cfg))
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, infra: infra, runTelegram: opts.RunTelegram, offline: opts.Offline}
	if err := a.wire(ctx, opts); err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

func bootstrapOptions(cfg *config.Config) bootstrap.Options {
	bo := bootstrap.Options{Config: &cfg.Config, Missing: cfg.Missing()}
	if cfg.Storage.Orders == config.BackendPostgres {
		migrations := postgres.Migrations()
		bo.Database = &cfg.Database
		bo.Migrations = &migrations
	}
	if cfg.Storage.Sessions == config.BackendRedis {
		bo.Redis = &cfg.Redis
	}
	return bo
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.cfg

	sessions, orderStore, err := a.stores()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.Shop)
	if err != nil {
		return err
	}
	carts := cart.New(sessions, cat)
	a.tracker = orders.New(orderStore, sessions, carts, orders.Options{})

	client := opts.PaymentClient
	if client == nil {
		client = netutil.NewClient(netutil.ClientOptions{Timeout: cfg.Payments.Timeout, DialRetriesOnly: true})
	}
	providers, verifiers, capturers, err := buildProviders(cfg, client)
	if err != nil {
		return err
	}

	sender := opts.Mailer
	if sender == nil {
		if sender, err = buildMailer(cfg.Mail); err != nil {
			return err
		}
	}

	a.machine = checkout.New(sessions, carts, a.tracker, providers, checkout.Options{
		ShopName:        cfg.Shop.Name,
		InfoText:        cfg.Shop.InfoText,
		ContactsText:    cfg.Shop.ContactsText,
		ProviderTimeout: cfg.Payments.Timeout,
	})
	a.bot = bot.New(a.machine, a.tracker)
	notifier := notify.New(a.bot, sender, notify.Options{
		ShopName:       cfg.Shop.Name,
		SupplierPhone:  cfg.Shop.SupplierPhone,
		OperatorChatID: cfg.Telegram.AdminID,
		OperatorEmail:  cfg.Mail.OperatorEmail,
	})
	// The machine moves the conversation on before the customer is told.
	a.tracker.OnPaid(a.machine)
	a.tracker.OnPaid(notifier)
	a.tracker.OnReceipt(notifier)

	a.registry = tg.NewRegistry()
	if err := a.bot.Register(a.registry); err != nil {
		return fmt.Errorf("app: register bot: %w", err)
	}

	httpOpts := webhook.Options{
		ShopName:     cfg.Shop.Name,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	a.handler = webhook.NewHandler(webhook.NewReceiver(a.tracker, capturers), verifiers, httpOpts)
	a.server = webhook.NewServer(cfg.HTTP.Addr(), a.handler, httpOpts)

	methods := make([]string, 0, providers.Len())
	for _, p := range providers.List() {
		methods = append(methods, string(p.Method()))
	}
	logger.Info(ctx, logger.CompWire, "shop.wired",
		slog.Any("methods", methods),
		slog.Int("products", len(cat.Products())),
		slog.String("sessions", cfg.Storage.Sessions),
		slog.String("orders", cfg.Storage.Orders),
		slog.Bool("mail", cfg.Mail.Enabled()),
	)
	return nil
}

func (a *App) stores() (storage.SessionStore, storage.OrderStore, error) {
	var sessions storage.SessionStore = memory.NewSessions()
	if a.cfg.Storage.Sessions == config.BackendRedis {
		if a.infra == nil || a.infra.Redis == nil {
			return nil, nil, errors.New("app: redis sessions configured but redis is not connected")
		}
		sessions = shopredis.NewSessions(a.infra.Redis, shopredis.Options{TTL: a.cfg.Storage.SessionTTL})
	}
	var orderStore storage.OrderStore = memory.NewOrders()
	if a.cfg.Storage.Orders == config.BackendPostgres {
		if a.infra == nil || a.infra.DB == nil {
			return nil, nil, errors.New("app: postgres orders configured but the database is not connected")
		}
		orderStore = postgres.NewOrders(a.infra.DB)
	}
	return sessions, orderStore, nil
}

func loadCatalog(cfg config.ShopConfig) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		loaded, err := catalog.Load(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		cat = loaded
	}
	if cfg.Currency != "" {
		return catalog.New(cat.Products(), cfg.Currency)
	}
	return cat, nil
}

func buildProviders(cfg *config.Config, client *http.Client) (*payment.Set, map[domain.Method]payment.Verifier, map[domain.Method]payment.Capturer, error) {
	links := payment.Links{BaseURL: cfg.HTTP.BaseURL}
	verifiers := make(map[domain.Method]payment.Verifier)
	capturers := make(map[domain.Method]payment.Capturer)
	var list []payment.Provider

	p := cfg.Payments
	if p.StripeEnabled() {
		sp, err := stripe.New(stripe.Config{
			SecretKey:     p.Stripe.SecretKey,
			WebhookSecret: p.Stripe.WebhookSecret,
			Links:         links,
			HTTPClient:    client,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		list = append(list, sp)
		verifiers[domain.MethodStripe] = sp
	}
	if p.PayPalEnabled() {
		pp, err := paypal.New(paypal.Config{
			ClientID:     p.PayPal.ClientID,
			ClientSecret: p.PayPal.ClientSecret,
			WebhookID:    p.PayPal.WebhookID,
			Sandbox:      p.PayPal.Sandbox,
			BrandName:    cfg.Shop.Name,
			Links:        links,
			HTTPClient:   client,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		list = append(list, pp)
		capturers[domain.MethodPayPal] = pp
		verifiers[domain.MethodPayPal] = pp
	}
	if p.ManualEnabled() {
		list = append(list, payment.Manual{Instructions: p.Manual.Instructions})
	}
	if len(list) == 0 {
		return nil, nil, nil, domain.MissingConfig("payments")
	}
	return payment.NewSet(list...), verifiers, capturers, nil
}

func buildMailer(cfg config.MailConfig) (mailer.Sender, error) {
	if !cfg.Enabled() {
		return mailer.Discard{}, nil
	}
	return mailer.New(mailer.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		TLS:      cfg.TLS,
		Timeout:  cfg.Timeout,
	})
}

// TelegramOptions builds the bot runtime options: shared middlewares, the
// storefront routes and the hook that enables out-of-band sends.
func (a *App) TelegramOptions() tg.RunOptions {
	cfg := &a.cfg.Config
	return tg.RunOptions{
		Config:         cfg,
		Registry:       a.registry,
		Middlewares:    tg.DefaultMiddlewares(cfg, rateLimited),
		Routes:         routes(a.registry, cfg.Telegram.AdminID, a.bot),
		AllowedUpdates: tg.ShopUpdates,
		Offline:        a.offline,
		OnStart: func(_ context.Context, rt tg.Runtime) error {
			a.bot.Attach(rt.Bot)
			return nil
		},
	}
}

func routes(reg *tg.Registry, adminID int64, fallback ui.FallbackProvider) []tg.Route {
	out := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: adminID})
	out = append(out, router.TextRoutes(reg, router.TextOptions{
		UnknownText:     fallback.UnknownText(),
		UnknownDocument: fallback.UnknownDocument(),
	})...)
	return append(out, router.CallbackRoute(reg, router.CallbackOptions{
		NotFound: fallback.UnknownCallback(),
	}))
}

func rateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: textRateLimited})
	}
	return tghelpers.SendText(c, textRateLimited)
}

// Handler is the payment HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves Telegram and the webhook listener until ctx ends or one of them
// fails, then releases the backends.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runTelegram(gctx, a.TelegramOptions())
	})
	g.Go(func() error {
		return webhook.Serve(gctx, a.server)
	})
	err := g.Wait()
	if closeErr := a.Close(); closeErr != nil {
		logger.Warn(context.WithoutCancel(ctx), logger.CompApp, "infra.close", logger.Err(closeErr))
	}
	return err
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	return a.infra.Close()
}
