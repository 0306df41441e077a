package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/auth"
	"github.com/santajump/server/internal/config"
	"github.com/santajump/server/internal/db"
	"github.com/santajump/server/internal/game"
	httphandler "github.com/santajump/server/internal/http"
	"github.com/santajump/server/internal/http/handlers"
	"github.com/santajump/server/internal/jobs"
	"github.com/santajump/server/internal/ledger"
	"github.com/santajump/server/internal/middleware"
	"github.com/santajump/server/internal/notify"
	"github.com/santajump/server/internal/quota"
	"github.com/santajump/server/internal/repo"
	"github.com/santajump/server/internal/settings"
)

func main() {
	// Load .env from CWD; real environment variables take precedence
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	userRepo := repo.NewUserRepo(database)
	gameRepo := repo.NewGameRepo(database)
	referralRepo := repo.NewReferralRepo(database)
	rewardRepo := repo.NewRewardRepo(database)
	voucherRepo := repo.NewVoucherRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	adRepo := repo.NewAdRepo(database)
	gameConfig := settings.NewCache(repo.NewConfigRepo(database), cfg.ConfigCacheTTL)

	quotaManager, err := quota.LoadManager(cfg.Timezone)
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}

	// Outbound delivery
	mailer := notify.NewMailer(cfg.Providers.Email)
	messenger := notify.NewMessenger(cfg.Providers.Messaging.Providers, cfg.Providers.Messaging.DryRun)
	dispatcher := notify.NewDispatcher(mailer, messenger)

	// Services
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.SessionTTL)
	otpService := auth.NewOtpService(otpRepo, dispatcher, cfg.OTPSalt, cfg.OTPDevMode)
	if cfg.OTPDevMode {
		log.Printf("OTP dev mode is ON: every code is %s", auth.DevOTP)
	}
	ledgerService := ledger.NewService(userRepo, referralRepo, rewardRepo, voucherRepo, gameConfig, mailer)
	authService := auth.NewAuthService(otpService, jwtService, userRepo, ledgerService, gameConfig)
	adminAuth := auth.NewAdminAuth(cfg.AdminUsername, cfg.AdminPasswordHash, jwtService)
	if cfg.AdminPasswordHash == "" {
		log.Printf("ADMIN_PASSWORD_HASH not set: admin login disabled")
	}
	gameService := game.NewService(userRepo, gameRepo, gameConfig, quotaManager)
	antiCheat := anticheat.NewService(gameRepo)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, adminAuth, jwtService, cfg.CookieSecure)
	defer authHandler.Close()
	adLimiter := middleware.NewRateLimiter(time.Minute, 30)
	defer adLimiter.Stop()

	router := httphandler.NewRouter(httphandler.Handlers{
		Auth:      authHandler,
		Me:        handlers.NewMeHandler(authService, gameService, ledgerService),
		Game:      handlers.NewGameHandler(gameService, antiCheat),
		Ledger:    handlers.NewLedgerHandler(ledgerService),
		Admin:     handlers.NewAdminHandler(gameConfig, antiCheat, ledgerService, adRepo),
		Public:    handlers.NewPublicHandler(database, gameConfig, gameService, adRepo),
		AdLimiter: adLimiter,
	}, jwtService, userRepo)

	scheduler, err := jobs.New(gameRepo, otpRepo)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	scheduler.Start()

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Printf("Scheduler shutdown: %v", err)
	}
	ledgerService.Wait()

	log.Println("Server exited")
}
