package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voltlink-io/onboardflow/internal/config"
	"github.com/voltlink-io/onboardflow/internal/database"
	"github.com/voltlink-io/onboardflow/internal/erp"
	"github.com/voltlink-io/onboardflow/internal/events"
	"github.com/voltlink-io/onboardflow/internal/handlers"
	"github.com/voltlink-io/onboardflow/internal/lorawan"
	"github.com/voltlink-io/onboardflow/internal/models"
	"github.com/voltlink-io/onboardflow/internal/notify"
	"github.com/voltlink-io/onboardflow/internal/repository"
	"github.com/voltlink-io/onboardflow/internal/schema"
	"github.com/voltlink-io/onboardflow/internal/workflow"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-migrate schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.UserAuth{},
		&models.Client{},
		&models.Product{},
		&models.Hardware{},
		&models.OnboardingTask{},
		&models.HardwareProcurementItem{},
		&models.DeviceProvisioning{},
		&models.TechnicalReport{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Wire repositories and the workflow engine
	validator := schema.NewValidator()
	store := schema.NewStore(db.DB, validator)
	taskRepo := repository.NewTaskRepository(db.DB)
	clientRepo := repository.NewClientRepository(db.DB)
	productRepo := repository.NewProductRepository(db.DB)
	hardwareRepo := repository.NewHardwareRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)

	engine := workflow.NewEngine(taskRepo, clientRepo, productRepo, hardwareRepo, userRepo, store, workflow.NewPolicy(), validator)
	engine.SetNotifier(notify.NewWhatsAppSender(cfg.WhatsApp))
	engine.SetWebhookSender(lorawan.NewWebhookClient(cfg.Lorawan))

	hub := events.NewHub()
	engine.SetEventPublisher(hub)

	// 5. Optional hardware catalog import from the ERP
	importer := erp.NewImporter(cfg.ERP, hardwareRepo)
	if importer.Configured() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := importer.ImportHardware(ctx); err != nil {
				log.Printf("⚠️ ERP hardware import failed: %v", err)
			}
		}()
	}

	// 6. Start server with graceful shutdown
	router := handlers.NewRouter(db, cfg, engine, taskRepo, store, importer, hub)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("🌐 onboardflow API listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("⚠️ Database shutdown error: %v", err)
	}
	log.Println("✅ Shutdown complete")
}
