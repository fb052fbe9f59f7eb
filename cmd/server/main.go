package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v84"

	"github.com/semanticallynull/rental-backend/api"
	"github.com/semanticallynull/rental-backend/bike"
	"github.com/semanticallynull/rental-backend/billing"
	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/incident"
	"github.com/semanticallynull/rental-backend/internal/auth0"
	"github.com/semanticallynull/rental-backend/internal/memstore"
	"github.com/semanticallynull/rental-backend/internal/middleware"
	"github.com/semanticallynull/rental-backend/internal/o11y"
	"github.com/semanticallynull/rental-backend/internal/schema"
	"github.com/semanticallynull/rental-backend/lock"
	"github.com/semanticallynull/rental-backend/notify"
	"github.com/semanticallynull/rental-backend/payment"
	"github.com/semanticallynull/rental-backend/pricing"
	"github.com/semanticallynull/rental-backend/reservation"
	"github.com/semanticallynull/rental-backend/ride"
	"github.com/semanticallynull/rental-backend/subscription"
	"github.com/semanticallynull/rental-backend/sweeper"
	"github.com/semanticallynull/rental-backend/unlock"
	"github.com/semanticallynull/rental-backend/wallet"
)

var cli = struct {
	DatabaseURL string `name:"database-url" env:"DATABASE_URL" help:"Postgres DSN. Empty runs on the in-memory store."`
	SeedFile    string `name:"seed-file" env:"SEED_FILE" help:"YAML fixture loaded into the in-memory store."`
	Migrate     bool   `name:"migrate" env:"MIGRATE" default:"true"`
	Port        int    `name:"port" env:"PORT" default:"8080"`

	Auth0Domain string `name:"auth0-domain" env:"AUTH0_DOMAIN"`
	Audience    string `name:"audience" env:"AUDIENCE"`
	FakeAuth    bool   `name:"fake-auth" env:"FAKE_AUTH" help:"Trust X-User-ID headers. Local use only."`

	MetricsUsername string `name:"metrics-username" env:"METRICS_USERNAME"`
	MetricsPassword string `name:"metrics-password" env:"METRICS_PASSWORD"`
	FeedUsername    string `name:"feed-username" env:"FEED_USERNAME"`
	FeedPassword    string `name:"feed-password" env:"FEED_PASSWORD"`

	StripeKey           string `name:"stripe-key" env:"STRIPE_KEY"`
	StripeWebhookSecret string `name:"stripe-webhook-secret" env:"STRIPE_WEBHOOK_SECRET"`
	Currency            string `name:"currency" env:"CURRENCY" default:"kes"`

	AMQPURL string `name:"amqp-url" env:"AMQP_URL" help:"Publish notifications to RabbitMQ when set."`

	LogLevel     slog.Level `name:"log-level" env:"LOG_LEVEL" default:"INFO"`
	LogFile      string     `name:"log-file" env:"LOG_FILE"`
	OTLPEndpoint string     `name:"otlp-endpoint" env:"OTLP_ENDPOINT" default:"localhost:4318"`
	SampleRatio  float64    `name:"trace-sample-ratio" env:"TRACE_SAMPLE_RATIO" default:"0.01"`

	Timezone                string        `name:"timezone" env:"TIMEZONE" default:"Africa/Nairobi"`
	NegativeBalanceCeiling  int64         `name:"negative-balance-ceiling" env:"NEGATIVE_BALANCE_CEILING" default:"0"`
	SecurityDepositRequired int64         `name:"security-deposit" env:"SECURITY_DEPOSIT" default:"0"`
	PendingTTL              time.Duration `name:"pending-ttl" env:"PENDING_TTL" default:"15m"`
	ReservationGrace        time.Duration `name:"reservation-grace" env:"RESERVATION_GRACE" default:"15m"`
	MaxRideAge              time.Duration `name:"max-ride-age" env:"MAX_RIDE_AGE" default:"24h"`
	SweepInterval           time.Duration `name:"sweep-interval" env:"SWEEP_INTERVAL" default:"1m"`
}{}

func main() {
	if err := run(); err != nil {
		log.Fatalf("unexpected error: %v", err)
	}
}

// stores is every persistence port the services need.
type stores struct {
	bikes         bike.Registry
	plans         pricing.Store
	subscriptions subscription.Store
	customers     customer.Store
	reservations  reservation.Store
	unlocks       unlock.Store
	rides         ride.Store
	locks         lock.Store
	incidents     incident.Store
	wallet        wallet.Store
}

func postgresStores(ctx context.Context) (*stores, func(), error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", cli.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, err
	}
	if cli.Migrate {
		if err := schema.Migrate(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &stores{
		bikes:         bike.NewRepository(db),
		plans:         pricing.NewRepository(db),
		subscriptions: subscription.NewRepository(db),
		customers:     customer.NewRepository(db),
		reservations:  reservation.NewRepository(db),
		unlocks:       unlock.NewRepository(db),
		rides:         ride.NewRepository(db),
		locks:         lock.NewRepository(db),
		incidents:     incident.NewRepository(db),
		wallet:        wallet.NewRepository(db),
	}, func() { db.Close() }, nil
}

func memoryStores() (*stores, error) {
	m := memstore.New()
	if cli.SeedFile != "" {
		seed, err := memstore.LoadSeed(cli.SeedFile)
		if err != nil {
			return nil, err
		}
		if err := m.Apply(seed); err != nil {
			return nil, err
		}
	}
	return &stores{
		bikes:         m,
		plans:         m,
		subscriptions: m,
		customers:     m,
		reservations:  m,
		unlocks:       m,
		rides:         m,
		locks:         m,
		incidents:     m,
		wallet:        m,
	}, nil
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	kong.Parse(&cli)

	obs, cleanup, err := o11y.Setup(ctx, o11y.Options{
		LogLevel:     cli.LogLevel,
		LogFile:      cli.LogFile,
		OTLPEndpoint: cli.OTLPEndpoint,
		SampleRatio:  cli.SampleRatio,
	})
	defer cleanup()
	if err != nil {
		return err
	}
	logger := obs.Logger

	var st *stores
	if cli.DatabaseURL != "" {
		var closeDB func()
		st, closeDB, err = postgresStores(ctx)
		if err != nil {
			return err
		}
		defer closeDB()
	} else {
		logger.Warn("no database configured, using in-memory store")
		st, err = memoryStores()
		if err != nil {
			return err
		}
	}

	loc, err := time.LoadLocation(cli.Timezone)
	if err != nil {
		return err
	}

	hub := notify.NewHub()
	notifiers := notify.Multi{hub, notify.Log{Logger: logger}}
	if cli.AMQPURL != "" {
		publisher, closeAMQP, err := notify.DialAMQP(cli.AMQPURL)
		if err != nil {
			return err
		}
		defer closeAMQP()
		notifiers = append(notifiers, publisher)
	}

	var gateway api.PaymentGateway = payment.NewFakeGateway()
	if cli.StripeKey != "" {
		stripe.Key = cli.StripeKey
		gateway = payment.NewStripeGateway(st.customers, cli.Currency, logger)
	}

	var auth gin.HandlerFunc
	var profiles auth0.Client
	if cli.FakeAuth {
		auth = middleware.FakeAuth()
		profiles = auth0.NewFakeClient()
	} else {
		auth, err = middleware.Auth(cli.Auth0Domain, cli.Audience)
		if err != nil {
			return err
		}
		profiles = auth0.NewHTTPClient(cli.Auth0Domain)
	}

	ledger := wallet.NewLedger(st.wallet, cli.NegativeBalanceCeiling, logger)
	eligibility := customer.NewEligibility(st.customers, ledger, cli.SecurityDepositRequired)
	tracker := ride.NewTracker(st.rides, st.bikes, st.plans, st.subscriptions, billing.NewEngine(loc), logger)

	svc := api.Services{
		Bikes:        st.bikes,
		Customers:    st.customers,
		Reservations: reservation.NewManager(st.reservations, st.bikes, st.plans, eligibility, notifiers, logger),
		Unlocks:      unlock.NewGate(st.unlocks, eligibility, notifiers, logger),
		Rides:        st.rides,
		Tracker:      tracker,
		Locks:        lock.NewGate(st.locks, st.rides, tracker, ledger, notifiers, logger),
		Incidents:    incident.NewHook(st.incidents, notifiers, logger),
		Wallet:       ledger,
		Payments:     gateway,
		Profiles:     profiles,
		Hub:          hub,
		Notifier:     notifiers,
	}

	sweeper.New(st.reservations, st.unlocks, st.locks, st.rides, notifiers, logger, sweeper.Config{
		Interval:         cli.SweepInterval,
		PendingTTL:       cli.PendingTTL,
		ReservationGrace: cli.ReservationGrace,
		MaxRideAge:       cli.MaxRideAge,
	}).Start(ctx)

	a := api.New(svc, api.Config{
		Auth:                auth,
		MetricsUsername:     cli.MetricsUsername,
		MetricsPassword:     cli.MetricsPassword,
		FeedUsername:        cli.FeedUsername,
		FeedPassword:        cli.FeedPassword,
		StripeWebhookSecret: cli.StripeWebhookSecret,
	}, logger, obs.Registry)

	serv := http.Server{
		Addr:    fmt.Sprintf(":%d", cli.Port),
		Handler: a.Router(),
	}

	go func() {
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	logger.Info("server started", "port", cli.Port)

	<-ctx.Done()
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = serv.Shutdown(ctx)
	if err != nil {
		return err
	}
	return nil
}
