package api

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"assistant-webui-backend/internal/assistants"
	"assistant-webui-backend/internal/llm"
)

// SetupRoutes configures all API routes.
func SetupRoutes(r *gin.Engine, db *sql.DB, manager *llm.Manager, factory llm.BackendFactory, store *assistants.Store) {
	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		llmService := NewLLMService(manager, factory, store, db)
		llmService.SetupRoutes(v1)

		modelService := NewModelService(manager)
		modelService.SetupRoutes(v1)

		assistantService := NewAssistantService(store)
		assistantService.SetupRoutes(v1)

		SetupChatRoutes(v1, db)
		SetupSettingsRoutes(v1, db)
	}
}
