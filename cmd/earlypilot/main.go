package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/config"
	"github.com/kdrag0n/earlypilot/internal/content"
	httptransport "github.com/kdrag0n/earlypilot/internal/http"
	"github.com/kdrag0n/earlypilot/internal/http/handler"
	httpmiddleware "github.com/kdrag0n/earlypilot/internal/http/middleware"
	"github.com/kdrag0n/earlypilot/internal/mailer"
	apimiddleware "github.com/kdrag0n/earlypilot/internal/middleware"
	"github.com/kdrag0n/earlypilot/internal/patreon"
	"github.com/kdrag0n/earlypilot/internal/payment"
	"github.com/kdrag0n/earlypilot/internal/repository"
	"github.com/kdrag0n/earlypilot/internal/security"
	"github.com/kdrag0n/earlypilot/internal/server"
	"github.com/kdrag0n/earlypilot/internal/service"
	"github.com/kdrag0n/earlypilot/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newUserRepository,
			newGrantRepository,
			newProductRepository,
			newPurchaseRepository,
			newDownloadEventRepository,
			newGrantCodec,
			newSessionCodec,
			newIdentityCache,
			newOAuthClient,
			newMailer,
			newCheckoutClient,
			newWebhookVerifier,
			newContentFilter,
			newRateLimiter,
			newAuthorizer,
			newGrantService,
			newFulfillmentService,
			newCheckoutService,
			service.NewAccessLog,
			newBenefitsMiddleware,
			newContentHandler,
			newAuthHandler,
			newBuyHandler,
			newWebhookHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newGrantRepository(pool *pgxpool.Pool) repository.GrantRepository {
	return repository.NewPostgresGrantRepo(pool)
}

func newProductRepository(pool *pgxpool.Pool) repository.ProductRepository {
	return repository.NewPostgresProductRepo(pool)
}

func newPurchaseRepository(pool *pgxpool.Pool) repository.PurchaseRepository {
	return repository.NewPostgresPurchaseRepo(pool)
}

func newDownloadEventRepository(pool *pgxpool.Pool) repository.DownloadEventRepository {
	return repository.NewPostgresDownloadEventRepo(pool)
}

func newGrantCodec(cfg config.Config) (*security.GrantCodec, error) {
	return security.NewGrantCodec(cfg.GrantKey)
}

func newSessionCodec(cfg config.Config) (*security.SessionCodec, error) {
	return security.NewSessionCodec(cfg.SessionKey)
}

func newIdentityCache() *patreon.IdentityCache {
	return patreon.NewIdentityCache(patreon.NewClient())
}

func newOAuthClient(cfg config.Config) *patreon.OAuthClient {
	return patreon.NewOAuthClient(cfg.PatreonClientID, cfg.PatreonClientSecret)
}

func newMailer(cfg config.Config) mailer.Mailer {
	return mailer.NewAPIMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFromAddress, cfg.MailFromName)
}

func newCheckoutClient(cfg config.Config) payment.CheckoutClient {
	return payment.NewStripeCheckoutClient(cfg.StripeSecretKey)
}

func newWebhookVerifier(cfg config.Config) *payment.WebhookVerifier {
	return payment.NewWebhookVerifier(cfg.StripeWebhookSecret)
}

func newContentFilter(cfg config.Config) (content.Filter, error) {
	return content.New(cfg.ContentFilter)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthorizer(users repository.UserRepository, identities *patreon.IdentityCache, cfg config.Config, logger *zap.Logger) *service.Authorizer {
	return service.NewAuthorizer(users, identities, cfg.CreatorID, cfg.MinTierAmountCents, logger)
}

func newGrantService(grants repository.GrantRepository, codec *security.GrantCodec, cfg config.Config, logger *zap.Logger) *service.GrantService {
	return service.NewGrantService(grants, codec, cfg.BaseURL, logger)
}

func newFulfillmentService(
	purchases repository.PurchaseRepository,
	products repository.ProductRepository,
	downloads repository.DownloadEventRepository,
	grantRepo repository.GrantRepository,
	grants *service.GrantService,
	mail mailer.Mailer,
	logger *zap.Logger,
) *service.FulfillmentService {
	return service.NewFulfillmentService(purchases, products, downloads, grantRepo, grants, mail, logger)
}

func newCheckoutService(
	products repository.ProductRepository,
	purchases repository.PurchaseRepository,
	grantRepo repository.GrantRepository,
	grants *service.GrantService,
	payments payment.CheckoutClient,
	cfg config.Config,
) *service.CheckoutService {
	return service.NewCheckoutService(products, purchases, grantRepo, grants, payments, cfg.BaseURL, cfg.BenefitIndexURL)
}

func newBenefitsMiddleware(sessions *security.SessionCodec, authorizer *service.Authorizer, grants *service.GrantService, cfg config.Config) *httpmiddleware.Benefits {
	return &httpmiddleware.Benefits{
		Sessions:   sessions,
		Authorizer: authorizer,
		Grants:     grants,
		CreatorID:  cfg.CreatorID,
	}
}

func newContentHandler(cfg config.Config, filter content.Filter, accessLog *service.AccessLog, grants *service.GrantService, logger *zap.Logger) *handler.ContentHandler {
	return &handler.ContentHandler{
		Root:      cfg.ExclusiveDir,
		Filter:    filter,
		AccessLog: accessLog,
		Grants:    grants,
		Logger:    logger,
	}
}

func newAuthHandler(oauth *patreon.OAuthClient, authorizer *service.Authorizer, sessions *security.SessionCodec, cfg config.Config, logger *zap.Logger) *handler.AuthHandler {
	return &handler.AuthHandler{
		OAuth:      oauth,
		Authorizer: authorizer,
		Sessions:   sessions,
		BaseURL:    cfg.BaseURL,
		Logger:     logger,
	}
}

func newBuyHandler(checkout *service.CheckoutService, logger *zap.Logger) *handler.BuyHandler {
	return &handler.BuyHandler{Checkout: checkout, Logger: logger}
}

func newWebhookHandler(verifier *payment.WebhookVerifier, fulfillment *service.FulfillmentService, identities *patreon.IdentityCache, cfg config.Config, logger *zap.Logger) *handler.WebhookHandler {
	return &handler.WebhookHandler{
		Verifier:    verifier,
		Fulfillment: fulfillment,
		Identities:  identities,
		PaymentKey:  cfg.StripeWebhookKey,
		PatreonKey:  cfg.PatreonWebhookKey,
		Logger:      logger,
	}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
