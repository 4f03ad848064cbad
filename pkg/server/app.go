package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalFeed/pkg/config"
	xhttp "SignalFeed/pkg/http"
	pkgkafka "SignalFeed/pkg/kafka"
	applogger "SignalFeed/pkg/logger"
)

// Broadcaster is the local push fan-out; it is closed after HTTP stops.
type Broadcaster interface {
	Count() int
	Close()
}

// Relay forwards change hints between instances until ctx ends.
type Relay interface {
	Run(ctx context.Context) error
}

// Sweeper drops idle per-key state, e.g. rate limit buckets.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	httpServer *xhttp.Server

	hub      Broadcaster
	relay    Relay
	consumer *pkgkafka.Consumer
	mirror   pkgkafka.MessageHandler
	sweeper  Sweeper
	closers  []namedCloser
}

// Option configures optional App components.
type Option func(*App)

func WithHub(h Broadcaster) Option {
	return func(a *App) { a.hub = h }
}

func WithRelay(r Relay) Option {
	return func(a *App) { a.relay = r }
}

// WithConsumer runs c with h registered for the lifetime of the app.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.mirror = h
	}
}

// WithLimiterSweep periodically evicts idle limiter buckets.
func WithLimiterSweep(s Sweeper) Option {
	return func(a *App) { a.sweeper = s }
}

// WithCloser closes c during shutdown, after HTTP and the consumer have stopped.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, handler xhttp.Handler, opts ...Option) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{cfg: cfg, log: log, handler: handler}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is cancelled.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.consumer != nil && a.mirror != nil {
		a.consumer.RegisterHandler(a.mirror)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("mirror consumer started", applogger.String("topic", a.mirror.Topic()))
	}

	if a.relay != nil {
		go func() {
			if err := a.relay.Run(bg); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("change relay stopped", applogger.Error(err))
			}
		}()
	}

	if a.sweeper != nil {
		go a.sweepLoop(bg)
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORSOrigins...),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) sweepLoop(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.sweeper.Sweep(10 * time.Minute); n > 0 {
				a.log.Debug("rate limit buckets evicted", applogger.Int("count", n))
			}
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.hub != nil {
		a.log.Info("closing push sessions", applogger.Int("sessions", a.hub.Count()))
		a.hub.Close()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.RemoveCollector()
	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
