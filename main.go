package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chickremind/internal/api"
	"chickremind/internal/attribution"
	"chickremind/internal/config"
	"chickremind/internal/database"
	"chickremind/internal/launch"
	myopenai "chickremind/internal/openai"
	"chickremind/internal/orbit"
	"chickremind/internal/push"
	"chickremind/internal/reminder"
	"chickremind/internal/scheduler"
	"chickremind/internal/settings"
	"chickremind/internal/twilio"

	"gorm.io/gorm"
)

func main() {
	logger := log.New(os.Stdout, "[chickremind] ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database init failed: %v", err)
	}

	store := settings.New(db)
	tracker := attribution.New(store, cfg.AttributionEndpoint, cfg.AttributionAppID, cfg.AppVersion, logger)
	bootstrap := launch.New(store, tracker, cfg.ConfigEndpoint, cfg.ForceMode, cfg.LocalTimezone, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decision, err := bootstrap.Resolve(ctx)
	if err != nil {
		logger.Fatalf("launch bootstrap failed: %v", err)
	}
	logger.Printf("launch: resolved mode %s", decision.Mode)

	if decision.Mode == launch.ModeOrbit {
		runOrbit(ctx, cancel, cfg, store, decision.URL, logger)
		return
	}
	runReminder(ctx, cancel, cfg, db, logger)
}

// runReminder serves the chicken-care reminder API and the notification scheduler.
func runReminder(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, db *gorm.DB, logger *log.Logger) {
	reminders := reminder.New(db)
	devices := push.New(db)
	openAIClient := myopenai.New(cfg.OpenAIAPIKey)
	twilioClient := twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)

	var sender scheduler.Sender
	if twilioClient != nil {
		sender = twilioClient
	}
	sched := scheduler.New(db, openAIClient, sender, devices, cfg.NotifyRecipient, cfg.LocalTimezone, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("scheduler start: %v", err)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(reminders, devices, logger).Router(),
	}

	go func() {
		logger.Printf("server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	waitForSignal(logger)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
	sched.Stop()
}

// runOrbit takes over as the embedded browser pointed at url.
func runOrbit(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, store *settings.Store, url string, logger *log.Logger) {
	orbitCfg := orbit.DefaultConfig()
	orbitCfg.Headless = cfg.OrbitHeadless
	orbitCfg.NavTimeout = cfg.OrbitNavTimeout
	orbitCfg.BounceCap = cfg.OrbitBounceCap

	core := orbit.NewCore(orbitCfg, store, logger)
	if err := core.Start(ctx); err != nil {
		logger.Fatalf("orbit start: %v", err)
	}

	orbit.NewForge(core, logger).Watch(ctx)
	navigator := orbit.NewNavigator(core, store, logger)

	go func() {
		waitForSignal(logger)
		cancel()
	}()

	if err := navigator.Run(ctx, url); err != nil && err != context.Canceled {
		logger.Printf("orbit: navigator stopped: %v", err)
	}
	if err := core.Shutdown(); err != nil {
		logger.Printf("orbit: shutdown error: %v", err)
	}
}

func waitForSignal(logger *log.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down...")
}
