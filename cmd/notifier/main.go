package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-tour-bookings.git/internal/booking"
	"github.com/ariefcatur/go-tour-bookings.git/internal/config"
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Repo:        &notify.Repo{DB: db},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-notifier",
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "8")

	// satu consumer per topic, handler sama utk keduanya
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range []string{booking.TopicBookingConfirmed, booking.TopicBookingCanceled} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		topic := topic
		g.Go(func() error {
			log.Printf("notifier consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			return cons.Start(gctx, svc.HandleBookingEvent)
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down notifier...")
	cancel()

	if err := g.Wait(); err != nil {
		log.Printf("consumer exit: %v", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
