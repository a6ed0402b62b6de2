package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"assistant-webui-backend/internal/api"
	"assistant-webui-backend/internal/assistants"
	"assistant-webui-backend/internal/database"
	"assistant-webui-backend/internal/llm"
	"assistant-webui-backend/internal/llm/backends"
)

func main() {
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "assistant.db")
	dataDir := getEnv("DATA_DIR", "data")

	// Open SQLite and run migrations
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Assistant profiles live as JSON files under the data dir
	store, err := assistants.NewStore(dataDir)
	if err != nil {
		log.Fatalf("Failed to create assistant store: %v", err)
	}

	// Backend manager holds only the local backend. Hosted backends are
	// built per request from caller-supplied credentials.
	factory := backends.NewDefaultFactory()
	manager := llm.NewManager(db)
	if err := manager.InitFromConfig(llm.LoadFromEnv(), factory); err != nil {
		log.Printf("Warning: failed to initialize local backend: %v", err)
	}
	defer manager.Close()

	// HTTP server
	router := gin.Default()
	router.Use(cors.New(corsConfig()))
	api.SetupRoutes(router, db, manager, factory, store)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}

	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = strings.Split(origins, ",")
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
