package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-tour-bookings.git/internal/booking"
	"github.com/ariefcatur/go-tour-bookings.git/internal/config"
	"github.com/ariefcatur/go-tour-bookings.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-tour-bookings.git/internal/kafka"
	"github.com/ariefcatur/go-tour-bookings.git/internal/metrics"
	"github.com/ariefcatur/go-tour-bookings.git/internal/notify"
	"github.com/ariefcatur/go-tour-bookings.git/internal/postgres"
	"github.com/ariefcatur/go-tour-bookings.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Register()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers (satu per topic, partisi per user)
	pConfirmed := kafkax.NewProducer(cfg.KafkaBrokers, booking.TopicBookingConfirmed, 1024)
	pConfirmed.Start(ctx)
	pCanceled := kafkax.NewProducer(cfg.KafkaBrokers, booking.TopicBookingCanceled, 1024)
	pCanceled.Start(ctx)

	// Domain wiring
	repo := &booking.Repo{DB: db}
	svc := &booking.Service{
		Store:             repo,
		Coupons:           &booking.Evaluator{DB: db},
		ProducerConfirmed: pConfirmed,
		ProducerCanceled:  pCanceled,
		ServiceName:       cfg.ServiceName,
	}

	validate := validator.New()
	router := httpx.NewRouter()
	(&httpx.BookingsHandler{Svc: svc, Redis: rdb, Validate: validate}).Register(router)
	(&httpx.CatalogHandler{Repo: repo, Validate: validate}).Register(router)
	(&httpx.NotificationsHandler{Repo: &notify.Repo{DB: db}}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// tutup inbox -> flush & close writer
	pConfirmed.Close()
	pCanceled.Close()
	cancel()
	pConfirmed.WaitClosed()
	pCanceled.WaitClosed()
}
