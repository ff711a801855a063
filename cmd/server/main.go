package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	adminhandler "clavionx/backend/internal/admin/handler"
	"clavionx/backend/internal/config"
	devicehandler "clavionx/backend/internal/device/handler"
	deviceservice "clavionx/backend/internal/device/service"
	"clavionx/backend/internal/devotp"
	devotphandler "clavionx/backend/internal/devotp/handler"
	healthhandler "clavionx/backend/internal/health/handler"
	identityhandler "clavionx/backend/internal/identity/handler"
	identityservice "clavionx/backend/internal/identity/service"
	lockoutdomain "clavionx/backend/internal/lockout/domain"
	lockoutservice "clavionx/backend/internal/lockout/service"
	"clavionx/backend/internal/metrics"
	mfaservice "clavionx/backend/internal/mfa/service"
	passwordservice "clavionx/backend/internal/password/service"
	"clavionx/backend/internal/platform/clock"
	"clavionx/backend/internal/policy/engine"
	policyrepo "clavionx/backend/internal/policy/repository"
	"clavionx/backend/internal/scheduler"
	"clavionx/backend/internal/security"
	"clavionx/backend/internal/server"
	"clavionx/backend/internal/server/middleware"
	sessionhandler "clavionx/backend/internal/session/handler"
	sessionservice "clavionx/backend/internal/session/service"
	"clavionx/backend/internal/telemetry"
	otelsetup "clavionx/backend/internal/telemetry/otel"
	"clavionx/backend/internal/telemetry/producer"
	userrepo "clavionx/backend/internal/user/repository"
)

// shutdownTimeout bounds the HTTP server drain on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	clk := clock.System{}

	st, err := openStores(cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer st.close()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	events := telemetry.Multi{otelsetup.NewEventEmitter(providers.LoggerProvider), kafkaProducer}

	tokens, err := tokenProvider(cfg)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	policies, err := engine.NewOPAEvaluator(ctx, policyrepo.NewDirRepository(cfg.PolicyDir))
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	var otpStore *devotp.MemoryStore
	if cfg.OTPReturnToClient {
		otpStore = devotp.NewMemoryStore(clk)
		log.Println("server: dev OTP mode, codes are readable at GET /dev/otp")
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	guard := lockoutservice.NewGuard(st.lockout, userrepo.AccountResolver{Users: st.users}, clk, lockoutdomain.Policy{
		MaxAttempts:  cfg.LockoutMaxAttempts,
		Window:       cfg.LockoutWindowDuration(),
		LockDuration: cfg.LockoutLockDuration(),
	})
	delivery := notifier(cfg, clk, otpStore)
	challenges := mfaservice.NewChallengeService(st.tokens, delivery, clk, mfaservice.Config{
		CodeTTL:     cfg.CodeTTL(),
		MaxAttempts: cfg.TwoFactorMaxAttempts,
		AppName:     "Clavionx",
	})
	devices := deviceservice.NewTrustService(st.devices, clk, cfg.TrustTTL())
	sessions := sessionservice.NewRegistry(st.sessions, clk, cfg.SessionMaxPerUser)
	history := passwordservice.NewHistoryService(st.history, hasher, clk, cfg.PasswordHistorySize)
	resets := passwordservice.NewResetTokens(st.resets, clk, cfg.ResetTTL())
	auditLog := auditLogger(st.audit)

	auth := identityservice.NewAuthService(identityservice.Deps{
		Users:        st.users,
		Hasher:       hasher,
		Guard:        guard,
		Challenge:    challenges,
		Devices:      devices,
		Sessions:     sessions,
		TwoFactor:    policies,
		Policy:       passwordPolicy(cfg),
		History:      history,
		Tickets:      tokens,
		Resets:       resets,
		Notifier:     delivery,
		Audit:        auditLog,
		Events:       events,
		ResetURL:     cfg.PasswordResetURL,
		StoreTimeout: cfg.StoreCallTimeout(),
	})

	var pinger healthhandler.Pinger
	if st.conn != nil {
		pinger = st.conn
	}
	checker := healthhandler.NewChecker(pinger, policies)
	grpcHealth := health.NewServer()

	routes := server.HTTPDeps{
		Auth:         identityhandler.NewHandler(auth, cfg.CookieTemplate()),
		Sessions:     sessionhandler.NewHandler(sessions),
		Devices:      devicehandler.NewHandler(devices, auth),
		SessionStore: sessions,
		CookieName:   cfg.SessionCookieName,
		Health:       checker,
		Metrics:      metrics.Handler(),
	}
	if cfg.RateLimitRPS > 0 {
		routes.RateLimit = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		if err := routes.RateLimit.TrustProxies(cfg.TrustedProxiesList()); err != nil {
			log.Fatalf("rate limit: %v", err)
		}
	}
	if otpStore != nil {
		routes.DevOTP = devotphandler.NewHandler(otpStore)
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := server.NewGRPCServer(server.GRPCDeps{
		Admin:    adminhandler.NewServer(guard, sessions, devices, st.users),
		Health:   grpcHealth,
		Tokens:   tokens,
		Sessions: sessions,
		Authz:    policies,
		Audit:    auditLog,
		Events:   events,
	})

	jobs := scheduler.New(clk)
	err = registerJobs(jobs, cfg, maintenance{
		CleanupInactive: sessions.CleanupInactive,
		PurgeOld:        sessions.PurgeOld,
		CleanupTokens:   challenges.Cleanup,
		CleanupDevices:  devices.CleanupExpired,
		CleanupResets:   resets.Cleanup,
		SyncHealth: func(ctx context.Context) error {
			return checker.SyncGRPC(ctx, grpcHealth)
		},
	})
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	_ = checker.SyncGRPC(ctx, grpcHealth)
	jobs.Start(ctx)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
	jobs.Stop()

	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	if err := kafkaProducer.Close(); err != nil {
		log.Printf("kafka close: %v", err)
	}
	log.Println("server stopped")
}
