package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	cacheadapter "github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/cache"
	eventadapter "github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/events"
	httpadapter "github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/http"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/memory"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/postgres"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/processor"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/adapters/security"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

const sandboxWebhookSecret = "whsec_sandbox"

type Runtime struct {
	cfg       Config
	logger    *slog.Logger
	service   *application.Service
	verifier  *security.JWTKeys
	outbox    *eventadapter.OutboxWorker
	sweeps    *eventadapter.SweepWorker
	db        *gorm.DB
	redis     *redis.Client
	cleanupFn func(context.Context)
}

type BuildOptions struct {
	// Migrate applies the embedded schema on startup when storage is postgres.
	Migrate bool
}

// NewRuntime loads configuration and wires the full dependency graph.
func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfg, BuildOptions{Migrate: true})
}

func Build(ctx context.Context, cfg Config, opts BuildOptions) (*Runtime, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping escrow core",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"storage", cfg.StorageDriver,
		"processor", cfg.ProcessorDriver,
	)

	rt := &Runtime{cfg: cfg, logger: logger}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Runtime, error) {
		closeAll()
		return nil, err
	}

	var repos postgres.Repositories
	switch cfg.StorageDriver {
	case StoragePostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fail(fmt.Errorf("gorm sql db: %w", err))
		}
		closers = append(closers, func() { _ = sqlDB.Close() })
		if opts.Migrate {
			if err := postgres.RunMigrations(ctx, db); err != nil {
				return fail(fmt.Errorf("run migrations: %w", err))
			}
		}
		rt.db = db
		repos = postgres.NewRepositories(db)
	default:
		logger.Warn("using in-memory storage; state is lost on restart")
		memRepos := memory.NewRepositories()
		seedProfiles(memRepos.Profiles, cfg.Fixtures)
		repos = postgres.Repositories{
			Orders:        memRepos.Orders,
			Revenues:      memRepos.Revenues,
			Transfers:     memRepos.Transfers,
			PaymentLogs:   memRepos.PaymentLogs,
			Contestations: memRepos.Contestations,
			Ledger:        memRepos.Ledger,
			Outbox:        memRepos.Outbox,
			Profiles:      memRepos.Profiles,
		}
	}

	var locker ports.Locker
	if cfg.RedisURL != "" {
		client, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		rt.redis = client
		locker = cacheadapter.NewRedisLocker(client, "")
	} else {
		logger.Warn("no redis configured; order locks are process-local")
		locker = memory.NewLocker()
	}

	var (
		paymentProcessor ports.PaymentProcessor
		webhookVerifier  ports.WebhookVerifier
	)
	switch cfg.ProcessorDriver {
	case ProcessorSandbox:
		logger.Warn("using sandbox payment processor")
		sandbox := processor.NewSandbox()
		seedAccounts(sandbox, cfg.Fixtures)
		paymentProcessor = sandbox
		secret := cfg.StripeWebhookSecret
		if secret == "" {
			secret = sandboxWebhookSecret
		}
		webhookVerifier = processor.NewWebhookVerifier(secret)
	default:
		stripeProcessor, err := processor.NewStripeProcessor(processor.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			APIURL:    cfg.StripeAPIURL,
			Timeout:   cfg.ProcessorTimeout,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("init stripe processor: %w", err))
		}
		paymentProcessor = stripeProcessor
		webhookVerifier = processor.NewWebhookVerifier(cfg.StripeWebhookSecret)
	}

	verifier, err := newTokenKeys(cfg, logger)
	if err != nil {
		return fail(err)
	}
	rt.verifier = verifier

	var publisher ports.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return fail(fmt.Errorf("init kafka publisher: %w", err))
		}
		closers = append(closers, func() { _ = kafkaPublisher.Close() })
		publisher = kafkaPublisher
	} else {
		publisher = eventadapter.NewLoggingPublisher(logger)
	}

	rt.service = application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:              cfg.ServiceID,
			CommissionRate:           cfg.CommissionRate,
			MaxOrderAmount:           cfg.MaxOrderAmount,
			Currency:                 cfg.Currency,
			CheckoutWindowHours:      cfg.CheckoutWindowHours,
			AuthorizationWindowHours: cfg.AuthorizationWindowHours,
			ConfirmationWindowHours:  cfg.ConfirmationWindowHours,
			ContestWindowHours:       cfg.ContestWindowHours,
			ProcessorTimeout:         cfg.ProcessorTimeout,
			LockTTL:                  cfg.LockTTL,
			SweepBatchSize:           cfg.SweepBatchSize,
			CheckoutSuccessURL:       cfg.CheckoutSuccessURL,
			CheckoutCancelURL:        cfg.CheckoutCancelURL,
		},
		Logger:        logger,
		Orders:        repos.Orders,
		Revenues:      repos.Revenues,
		Transfers:     repos.Transfers,
		PaymentLogs:   repos.PaymentLogs,
		Contestations: repos.Contestations,
		Ledger:        repos.Ledger,
		Outbox:        repos.Outbox,
		Profiles:      repos.Profiles,
		Processor:     paymentProcessor,
		Webhooks:      webhookVerifier,
		Locker:        locker,
	})

	rt.outbox = eventadapter.NewOutboxWorker(logger, repos.Outbox, publisher, eventadapter.OutboxConfig{
		Interval:   cfg.OutboxPollInterval,
		BatchSize:  cfg.OutboxBatchSize,
		ClaimTTL:   cfg.OutboxClaimTTL,
		MaxRetries: cfg.OutboxMaxRetries,
	})
	rt.sweeps = eventadapter.NewSweepWorker(logger, rt.service, cfg.SweepInterval, cfg.SweepNames)
	rt.cleanupFn = func(context.Context) { closeAll() }
	return rt, nil
}

// newTokenKeys builds the bearer key set. A configured private key also
// verifies; ephemeral keys are a local-only fallback.
func newTokenKeys(cfg Config, logger *slog.Logger) (*security.JWTKeys, error) {
	switch {
	case cfg.JWTPrivateKeyPEM != "":
		keys, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer, cfg.JWTPrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("init jwt signer: %w", err)
		}
		return keys, nil
	case cfg.JWTPublicKeyPEM != "":
		keys, err := security.NewJWTVerifier(cfg.JWTIssuer, cfg.JWTPublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("init jwt verifier: %w", err)
		}
		return keys, nil
	case cfg.AllowEphemeralJWT:
		logger.Warn("using ephemeral JWT keys for local/dev runtime")
		keys, err := security.NewEphemeralJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
		return keys, nil
	default:
		return nil, errors.New("no jwt key configured")
	}
}

func seedProfiles(directory *memory.ProfileDirectory, fixtures Fixtures) {
	for _, inf := range fixtures.Influencers {
		directory.PutInfluencer(ports.InfluencerAccount{ID: inf.ID, ConnectedAccountID: inf.ConnectedAccountID})
	}
	for _, m := range fixtures.Merchants {
		directory.PutMerchant(ports.Merchant{ID: m.ID, Email: m.Email})
	}
	for _, o := range fixtures.Offers {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			slog.Default().Warn("skipping offer fixture with invalid price", "offer_id", o.ID, "price", o.Price)
			continue
		}
		directory.PutOffer(ports.Offer{
			ID:           o.ID,
			InfluencerID: o.InfluencerID,
			Title:        o.Title,
			Price:        price,
			Currency:     o.Currency,
			Active:       true,
		})
	}
}

func seedAccounts(sandbox *processor.Sandbox, fixtures Fixtures) {
	for _, inf := range fixtures.Influencers {
		if inf.ConnectedAccountID == "" {
			continue
		}
		sandbox.PutAccount(ports.ConnectedAccount{
			ID:                 inf.ConnectedAccountID,
			PayoutsEnabled:     true,
			ChargesEnabled:     true,
			HasExternalAccount: true,
		})
	}
}

func (r *Runtime) Service() *application.Service {
	return r.service
}

// TokenSigner returns the signing key set, which exists only when a private
// key or ephemeral keys are configured.
func (r *Runtime) TokenSigner() (ports.TokenSigner, error) {
	if r.verifier == nil || !r.verifier.CanSign() {
		return nil, errors.New("no jwt private key configured")
	}
	return r.verifier, nil
}

func (r *Runtime) Migrate(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("storage driver %q has no schema", r.cfg.StorageDriver)
	}
	return postgres.RunMigrations(ctx, r.db)
}

func (r *Runtime) ready(ctx context.Context) error {
	if r.db != nil {
		if err := postgres.Ping(ctx, r.db); err != nil {
			return err
		}
	}
	if r.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	return nil
}

// HTTPHandler builds the router; exposed for the CLI and tests.
func (r *Runtime) HTTPHandler() http.Handler {
	handler := httpadapter.NewHandler(r.service, r.verifier, r.ready)
	return httpadapter.NewRouter(handler, httpadapter.RouterOptions{
		RateLimit: r.cfg.RateLimitPerSecond,
		RateBurst: r.cfg.RateLimitBurst,
	})
}

func (r *Runtime) Close(ctx context.Context) {
	if r.cleanupFn != nil {
		r.cleanupFn(ctx)
	}
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.HTTPPort),
		Handler:           r.HTTPHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.Close(ctx)
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	r.Close(shutdownCtx)
	return runErr
}

// RunWorker drives the outbox publisher and the escrow sweeps until the
// process is signalled.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("escrow worker started",
		"sweep_interval", r.cfg.SweepInterval.String(),
		"outbox_poll_interval", r.cfg.OutboxPollInterval.String(),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	for _, run := range []func(context.Context) error{r.outbox.Run, r.sweeps.Run} {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(run)
	}
	wg.Wait()
	close(errCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Close(shutdownCtx)
	if err, ok := <-errCh; ok {
		return err
	}
	return nil
}
