package main

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/resumly/billing/auth"
	"github.com/resumly/billing/broker"
	"github.com/resumly/billing/db"
	"github.com/resumly/billing/gateway"
	"github.com/resumly/billing/subscription"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))
	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
	}); err != nil {
		logger.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "api",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Fatal("Cannot initialize zapsentry",
			zap.Error(err),
		)
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	// Initialize backend connections
	db, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{os.Getenv("REDIS_URI")},
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	amqpBroker, err := broker.NewAMQPBroker(os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	gatewayClient, err := gateway.NewClient(gateway.Options{
		KeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		KeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize gateway client",
			zap.Error(err),
		)
	}
	if !gatewayClient.Configured() {
		logger.Warn("Payment gateway credentials are not configured, billing calls will fail")
	}

	authManager, err := auth.New(auth.Options{
		Logger:        logger,
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Environment:   authEnvironment,
	})
	if err != nil {
		logger.Fatal("Cannot initialize AuthManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	pricingTable := subscription.DefaultPricingTable()
	pricingTable.GatewayPlans = map[subscription.Tier]map[subscription.BillingCycle]string{
		subscription.TierPremium: {
			subscription.CycleMonthly: os.Getenv("RAZORPAY_PLAN_PREMIUM_MONTHLY"),
			subscription.CycleAnnual:  os.Getenv("RAZORPAY_PLAN_PREMIUM_ANNUAL"),
		},
	}

	resolver, err := subscription.NewResolver(subscription.ResolverOptions{
		Table: pricingTable,
		Rates: &subscription.CachedRateSource{
			Redis: rdb,
			Source: &subscription.HTTPRateSource{
				Endpoint: os.Getenv("EXCHANGE_RATE_URL"),
			},
			TTL:    time.Hour,
			Logger: logger,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize pricing Resolver",
			zap.Error(err),
		)
	}

	activator, err := subscription.NewActivator(subscription.ActivatorOptions{
		Store:    subscriptionManager,
		Gateway:  gatewayClient,
		Resolver: resolver,
		Producer: amqpBroker,
		Logger:   logger,
		BaseURL:  os.Getenv("SITE_URL"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize trial Activator",
			zap.Error(err),
		)
	}

	lifecycle, err := subscription.NewLifecycle(subscription.LifecycleOptions{
		Store:    subscriptionManager,
		Gateway:  gatewayClient,
		Table:    pricingTable,
		Producer: amqpBroker,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize subscription Lifecycle",
			zap.Error(err),
		)
	}

	subscriptionRouter, err := subscription.NewService(subscription.ServiceOptions{
		Store:     subscriptionManager,
		Activator: activator,
		Lifecycle: lifecycle,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	webhook, err := subscription.NewWebhook(subscription.WebhookOptions{
		Store:    subscriptionManager,
		Secret:   os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		Producer: amqpBroker,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Webhook Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("SITE_URL")},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	rootRouter.Route("/subscription", func(r chi.Router) {
		r.Use(authManager.Middleware())
		r.Use(authManager.ClaimCheck())
		r.Mount("/", subscriptionRouter.Router())
	})
	rootRouter.Mount("/webhooks", webhook.Router())

	rootRouter.HandleFunc("/pprof/*", pprof.Index)
	rootRouter.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	rootRouter.HandleFunc("/pprof/profile", pprof.Profile)
	rootRouter.HandleFunc("/pprof/symbol", pprof.Symbol)
	rootRouter.HandleFunc("/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    ":42069",
	}

	logger.Info("API started")

	log.Fatalln(srv.ListenAndServe())
}
