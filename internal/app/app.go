// Package app wires the service together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"webstore/internal/bus"
	"webstore/internal/config"
	"webstore/internal/email"
	"webstore/internal/eventstore"
	"webstore/internal/httpapi"
	"webstore/internal/orders"
	"webstore/internal/payments"
	"webstore/internal/products"
	"webstore/internal/queue"
	"webstore/internal/recorder"
	"webstore/internal/storage"
	"webstore/internal/websocket"
)

type App struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *storage.Store
	rdb         *redis.Client
	events      *eventstore.PostgresStore
	publisher   bus.Publisher
	recorderSub *bus.RabbitSubscription
	paymentSub  *bus.RabbitSubscription
	feedSub     *bus.RabbitSubscription
	emailQueue  *queue.RabbitQueue
	rec         *recorder.Recorder
	notifier    *email.Notifier
	payment     *payments.Listener
	wsHub       *websocket.Hub
	httpSrv     *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	events := eventstore.NewPostgresStore(store.Pool(), logger)
	rec := recorder.New(events, cfg.EventRecordTTL, logger)

	catalog := products.NewCachedCatalog(products.NewPostgresCatalog(store.Pool()), rdb, cfg.ProductCacheTTL, logger)
	productSvc := products.NewAdminService(catalog, rec, logger)

	publisher, err := bus.NewRabbitPublisher(cfg.RabbitURL, cfg.EventsExchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	orderSvc := orders.NewService(orders.NewPostgresRepository(store.Pool()), catalog, publisher, logger)

	app := &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		rdb:       rdb,
		events:    events,
		publisher: publisher,
		rec:       rec,
		notifier:  email.NewNotifier(email.LogSender{Logger: logger}, logger),
		payment:   payments.NewListener(logger),
		wsHub:     websocket.NewHub(),
	}

	if err := app.subscribe(); err != nil {
		app.Close(ctx)
		return nil, err
	}

	api := httpapi.NewServer(orderSvc, productSvc, events, cfg.RequestTimeout, logger)
	wsHandler := websocket.NewHandler(app.wsHub, orderSvc, logger)
	api.HandleFunc("GET /orders/{orderID}/ws", wsHandler.ServeWS)
	app.httpSrv = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	return app, nil
}

// subscribe declares every consumer's queue and binding on the
// notification exchange.
func (a *App) subscribe() error {
	var err error

	// Recorder sees every event type.
	a.recorderSub, err = bus.NewRabbitSubscription(a.cfg.RabbitURL, a.cfg.EventsExchange, a.cfg.RecorderQueue, bus.Filter{}, a.logger)
	if err != nil {
		return fmt.Errorf("recorder subscription: %w", err)
	}

	a.paymentSub, err = bus.NewRabbitSubscription(a.cfg.RabbitURL, a.cfg.EventsExchange, a.cfg.PaymentQueue, payments.Filter(), a.logger)
	if err != nil {
		return fmt.Errorf("payment subscription: %w", err)
	}

	a.feedSub, err = bus.NewRabbitSubscription(a.cfg.RabbitURL, a.cfg.EventsExchange, a.cfg.FeedQueue, bus.Filter{}, a.logger)
	if err != nil {
		return fmt.Errorf("feed subscription: %w", err)
	}

	emailPolicy := queue.Policy{
		BatchSize:    a.cfg.EmailBatchSize,
		BatchWindow:  a.cfg.EmailBatchWindow,
		MaxReceive:   a.cfg.MaxReceiveCount,
		Retention:    a.cfg.QueueRetention,
		DLQRetention: a.cfg.DLQRetention,
	}
	a.emailQueue, err = queue.NewRabbitQueue(a.cfg.RabbitURL, a.cfg.EventsExchange, a.cfg.EmailQueue, email.Filter(), emailPolicy, a.logger)
	if err != nil {
		return fmt.Errorf("email queue: %w", err)
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One slot per sender: four consumers plus the HTTP server.
	errCh := make(chan error, 5)

	a.events.StartSweeper(ctx, a.cfg.EventSweepInterval)
	go a.wsHub.Run(ctx)

	go func() {
		errCh <- a.recorderSub.Start(ctx, a.rec.HandleDelivery)
	}()
	go func() {
		errCh <- a.paymentSub.Start(ctx, a.payment.HandleDelivery)
	}()
	go func() {
		errCh <- a.feedSub.Start(ctx, a.wsHub.HandleDelivery)
	}()
	go func() {
		errCh <- a.emailQueue.Start(ctx, a.notifier.HandleBatch)
	}()

	go func() {
		a.logger.Info("orders http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGracePeriod)
	defer cancel()
	if a.httpSrv != nil {
		_ = a.httpSrv.Shutdown(shutdownCtx)
	}
	for _, sub := range []*bus.RabbitSubscription{a.recorderSub, a.paymentSub, a.feedSub} {
		if sub != nil {
			sub.Close()
		}
	}
	if a.emailQueue != nil {
		a.emailQueue.Close()
	}
	a.publisher.Close()
	_ = a.rdb.Close()
	a.store.Close()
}

func Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
