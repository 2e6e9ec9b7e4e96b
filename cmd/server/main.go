package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-operations-backend/internal/clock"
	"clinic-operations-backend/internal/config"
	handler "clinic-operations-backend/internal/handlers"
	"clinic-operations-backend/internal/logger"
	"clinic-operations-backend/internal/notify"
	"clinic-operations-backend/internal/repository"
	"clinic-operations-backend/internal/routes"
	"clinic-operations-backend/internal/services/billing"
	"clinic-operations-backend/internal/services/cashledger"
	"clinic-operations-backend/internal/services/lifecycle"
	"clinic-operations-backend/internal/services/reconciliation"
	"clinic-operations-backend/internal/services/reminder"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-gomail/gomail"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointments, billing and cash ledger backend",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogPretty)

			db, err := config.InitDB(cfg)
			if err != nil {
				return err
			}
			if err := config.Migrate(db); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.DBDriver).Msg("migrations applied")
			return nil
		},
	}
}

func runServer() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return err
	}

	sink, closeSinks, err := buildSink(cfg, log)
	if err != nil {
		return err
	}
	defer closeSinks()

	svc := buildServices(db, cfg, sink, log)

	ctx := context.Background()
	if err := svc.Reminders.Start(ctx); err != nil {
		return fmt.Errorf("arm reminders: %w", err)
	}
	defer svc.Reminders.Stop()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(log))
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

func buildServices(db *gorm.DB, cfg *config.Config, sink notify.Sink, log zerolog.Logger) routes.Services {
	now := clock.Clock(clock.System)

	appointmentRepo := repository.NewAppointmentRepository(db)
	eventRepo := repository.NewEventRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	poster := cashledger.NewPoster(ledgerRepo, paymentRepo, now, log)
	reconService := reconciliation.NewReconciliationService(invoiceRepo, paymentRepo, poster, now, log)
	gate := billing.NewGate(reconService)

	scheduler := reminder.NewScheduler(appointmentRepo, sink, log,
		reminder.WithLead(cfg.ReminderLead),
		reminder.WithLocation(cfg.Location),
		reminder.WithClock(now),
	)

	lifecycleService := lifecycle.NewService(appointmentRepo, eventRepo, reconService, gate, scheduler, now, cfg.Location, log)

	return routes.Services{
		Lifecycle:      lifecycleService,
		Reconciliation: reconService,
		Ledger:         poster,
		Reminders:      scheduler,
	}
}

// buildSink assembles the reminder sinks named in NOTIFY_SINKS.
func buildSink(cfg *config.Config, log zerolog.Logger) (notify.Sink, func(), error) {
	var (
		sinks notify.MultiSink
		rdb   *redis.Client
	)
	redisClient := func() *redis.Client {
		if rdb == nil {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
		}
		return rdb
	}

	for _, name := range cfg.NotifySinks {
		switch name {
		case "log":
			sinks = append(sinks, notify.LogSink{Log: log.With().Str("component", "notify").Logger()})
		case "redis":
			sinks = append(sinks, notify.NewRedisSink(redisClient(), cfg.ReminderChannel))
		case "email":
			if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
				return nil, nil, errors.New("email reminders need SMTP_HOST and SMTP_FROM")
			}
			dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
			sinks = append(sinks, notify.NewEmailSink(dialer, notify.NewRedisResolver(redisClient()), cfg.SMTPFrom))
		case "sms":
			if cfg.TwilioAccountSID == "" || cfg.TwilioFrom == "" {
				return nil, nil, errors.New("sms reminders need TWILIO_ACCOUNT_SID and TWILIO_FROM")
			}
			creator := notify.NewTwilioCreator(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
			sinks = append(sinks, notify.NewSMSSink(creator, notify.NewRedisResolver(redisClient()), cfg.TwilioFrom))
		default:
			return nil, nil, fmt.Errorf("unknown notify sink %q", name)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, notify.LogSink{Log: log})
	}

	closer := func() {
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("closing redis client")
			}
		}
	}
	return sinks, closer, nil
}
