package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/you/salon-booking/pkg/auth"
	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/pkg/config"
	"github.com/you/salon-booking/pkg/db"
	"github.com/you/salon-booking/pkg/logger"
	"github.com/you/salon-booking/pkg/mq"
	"github.com/you/salon-booking/pkg/obs"
	"github.com/you/salon-booking/services/booking-service/internal/gateway"
	"github.com/you/salon-booking/services/booking-service/internal/repository"
	"github.com/you/salon-booking/services/booking-service/internal/service"
	thttp "github.com/you/salon-booking/services/booking-service/internal/transport/http"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

// publisher returns a RabbitMQ publisher, or Nop when no broker is configured.
func publisher(url, exchange string, lg *slog.Logger) (mq.EventPublisher, func()) {
	if url == "" {
		lg.Info("[booking] RABBIT_URL not set, events disabled", "exchange", exchange)
		return mq.Nop{}, func() {}
	}
	p := must(mq.NewPublisher(url, exchange))
	return p, func() { _ = p.Close() }
}

func newGateway(cfg config.App, lg *slog.Logger) gateway.Gateway {
	if cfg.GatewayPublicKey == "" {
		lg.Warn("[booking] GATEWAY_PUBLIC_KEY not set, using in-memory gateway")
		return gateway.NewFake()
	}
	omc := must(gateway.NewOmiseClient(cfg.GatewayPublicKey, cfg.GatewaySecretKey))
	return gateway.NewOmise(omc, cfg.GatewaySourceType, gateway.Policy{
		Timeout:     cfg.GatewayTimeout,
		MaxAttempts: cfg.GatewayMaxAttempts,
	}, lg)
}

func main() {
	_ = godotenv.Load()
	cfg := must(config.Load())
	lg := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(lg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer := must(obs.InitTracer(ctx, "booking-service", cfg.OTLPEndpoint, cfg.Env))

	// DB
	gdb := must(db.Open(cfg.DatabaseDSN, lg))
	must(0, repository.Migrate(gdb))

	c := cache.New(ctx, cfg.RedisURL, lg, cache.Options{})
	defer c.Close()

	bookingPub, closeBooking := publisher(cfg.RabbitURL, cfg.BookingExchange, lg)
	defer closeBooking()
	paymentPub, closePayment := publisher(cfg.RabbitURL, cfg.PaymentExchange, lg)
	defer closePayment()

	schedules := repository.NewScheduleRepo(gdb)
	dir := service.NewDirectory(repository.NewDirectoryRepo(gdb), c)
	avail := service.NewAvailabilitySvc(schedules, dir, c, lg)
	bookings := service.NewBookingSvc(repository.NewBookingRepo(gdb), schedules, dir, c, bookingPub,
		repository.Pricing{DiscountPercent: cfg.ReferralDiscountPercent, RewardPoints: cfg.ReferralRewardPoints}, lg)
	payments := service.NewPaymentSvc(repository.NewPaymentRepo(gdb), bookings, newGateway(cfg, lg),
		service.PaymentConfig{Secret: cfg.GatewaySecretKey, Currency: cfg.GatewayCurrency}, c, paymentPub, lg)

	router := thttp.NewRouter(thttp.Deps{
		Availability:        avail,
		Bookings:            bookings,
		Payments:            payments,
		Signer:              auth.NewSigner(cfg.JWTSecret, cfg.RefreshSecret(), cfg.AccessTTL(), cfg.RefreshTTL()),
		Cache:               c,
		Ping:                func(context.Context) error { return db.Ping(gdb) },
		Log:                 lg,
		GatewayPublicKey:    cfg.GatewayPublicKey,
		DefaultSlotDuration: cfg.SlotDurationMin,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("[booking] HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("[booking] http server", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Warn("[booking] http shutdown", "err", err)
	}
	if err := shutdownTracer(sctx); err != nil {
		lg.Warn("[booking] tracer shutdown", "err", err)
	}
	lg.Info("[booking] stopped")
}
