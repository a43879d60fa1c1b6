package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"opscheck/backend/internal/api/handler"
	"opscheck/backend/internal/authority"
	"opscheck/backend/internal/lifecycle"
	"opscheck/backend/internal/models"
	"opscheck/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies() (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		getenv("DB_HOST", "localhost"),
		getenv("DB_USER", "user"),
		getenv("DB_PASSWORD", "password"),
		getenv("DB_NAME", "opscheckdb"),
		getenv("DB_PORT", "5432"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     getenv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// 3. Migrations
	err = db.AutoMigrate(
		&models.Violation{},
		&models.ViolationEvent{},
		&models.OrgMember{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	log.Println("Starting OpsCheck Violation Service...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is not set!")
	}

	// 1. Dependencies
	db, rdb := setupDependencies()
	s := storage.NewStorageService(db, rdb)

	// 2. Lifecycle engine and authority check
	roles := authority.NewService(s)
	engine := lifecycle.NewService(s, roles)

	// 3. Gin routing
	r := gin.Default()
	h := handler.NewHandler(engine, s, []byte(jwtSecret))

	r.POST("/token", h.MintToken)

	r.POST("/violations/:id/acknowledge", h.Acknowledge)
	r.POST("/violations/:id/action", h.SubmitAction)
	r.POST("/violations/:id/verify", h.Verify)
	r.POST("/violations/:id/resolve", h.Resolve)
	r.POST("/violations/:id/waive", h.Waive)
	r.POST("/violations/:id/legacy-resolve", h.LegacyResolve)
	r.GET("/violations/:id/events", h.GetEvents)

	// Narrow primitives for the detection path and escalation trigger.
	r.POST("/internal/violations", h.CreateViolation)
	r.POST("/internal/violations/:id/escalations", h.InsertEscalation)

	r.GET("/ws/events", h.ServeEventFeed)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:           getenv("LISTEN_ADDR", ":8080"),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
