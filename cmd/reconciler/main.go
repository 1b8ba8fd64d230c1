package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicerecon/internal/cache"
	"github.com/flexprice/invoicerecon/internal/clock"
	"github.com/flexprice/invoicerecon/internal/config"
	"github.com/flexprice/invoicerecon/internal/domain/payment"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/postgres"
	"github.com/flexprice/invoicerecon/internal/publisher"
	"github.com/flexprice/invoicerecon/internal/pubsub"
	"github.com/flexprice/invoicerecon/internal/pubsub/kafka"
	"github.com/flexprice/invoicerecon/internal/pubsub/memory"
	pubsubRouter "github.com/flexprice/invoicerecon/internal/pubsub/router"
	"github.com/flexprice/invoicerecon/internal/repository"
	"github.com/flexprice/invoicerecon/internal/sentry"
	"github.com/flexprice/invoicerecon/internal/service"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/flexprice/invoicerecon/internal/validator"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Options are the command line flags of a run
type Options struct {
	ScenarioPath string
	Debug        bool
}

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts Options
	flag.StringVar(&opts.ScenarioPath, "scenario", "scenario.json", "Path of the JSON scenario to run")
	flag.BoolVar(&opts.Debug, "debug", false, "Dump clock advance results and invoices")
	flag.Parse()

	// a missing .env is fine, config falls back to defaults and environment
	_ = godotenv.Load()

	scenario, err := LoadScenario(opts.ScenarioPath)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}

	app := fx.New(
		fx.Supply(opts, scenario),
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.Initialize,

			// Clock
			provideClock,
			func(c *clock.ManualClock) clock.Clock { return c },

			// Repositories
			provideRepositories,
			repository.NewCatalogRepository,
			repository.NewEntitlementRepository,
			repository.NewInvoiceRepository,

			// PubSub
			providePubSub,
			func(ps pubsub.PubSub) pubsub.Publisher { return ps },
			pubsubRouter.NewRouter,

			// Signal publisher
			publisher.NewSignalPublisher,

			// Payments
			providePaymentGateway,
		),

		// Monitoring
		sentry.Module(),

		// Service layer
		fx.Provide(
			service.NewServiceParams,
			service.NewCatalogService,
			service.NewEntitlementService,
			service.NewInvoiceService,
			service.NewReconciliationService,
			service.NewPaymentService,
			service.NewCoordinator,
		),

		fx.Provide(NewRunner),
		fx.Invoke(
			startSignalRouter,
			runScenario,
		),
	)
	app.Run()
}

func provideClock(scenario *Scenario) (*clock.ManualClock, error) {
	start, err := scenario.Start()
	if err != nil {
		return nil, err
	}
	return clock.NewManualClock(start), nil
}

func provideRepositories(lc fx.Lifecycle, cfg *config.Configuration, logger *logger.Logger) (repository.Repositories, error) {
	if cfg.Store.Type != types.StorePostgres {
		return repository.NewMemoryRepositories(), nil
	}

	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		return repository.Repositories{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			db.Close()
			return nil
		},
	})
	return repository.NewPostgresRepositories(db, logger), nil
}

func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	var ps pubsub.PubSub
	switch cfg.PubSub.Type {
	case types.KafkaPubSub:
		var err error
		if ps, err = kafka.NewPubSub(cfg, logger); err != nil {
			return nil, err
		}
	default:
		ps = memory.NewPubSub(logger)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func providePaymentGateway(cfg *config.Configuration) payment.Gateway {
	return payment.NewMemoryGateway(cfg.Payment.AutoPay)
}

// startSignalRouter logs every published signal as it is consumed back from
// the bus
func startSignalRouter(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	logger *logger.Logger,
) {
	router.AddNoPublishHandler(
		"signal_logger",
		cfg.PubSub.Topic,
		pubsub.WatermillSubscriber(ps),
		func(msg *message.Message) error {
			signal, err := publisher.Decode(msg)
			if err != nil {
				return err
			}
			logger.Infow("signal",
				"type", signal.Type,
				"subscription_id", signal.SubscriptionID,
				"invoice_id", signal.InvoiceID,
				"payment_id", signal.PaymentID,
				"status", signal.Status,
				"effective_date", types.FormatDate(signal.EffectiveDate),
			)
			return nil
		},
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting signal router")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Errorw("signal router failed", "error", err)
				}
			}()
			<-router.Running()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping signal router")
			return router.Close()
		},
	})
}

// runScenario executes the scenario once the app started and shuts it down
// when the run is over
func runScenario(lc fx.Lifecycle, shutdowner fx.Shutdowner, runner *Runner, logger *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				code := 0
				if err := runner.Run(context.Background()); err != nil {
					logger.Errorw("scenario failed", "error", err)
					code = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Errorw("shutdown failed", "error", err)
					os.Exit(1)
				}
			}()
			return nil
		},
	})
}
