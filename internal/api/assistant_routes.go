package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"assistant-webui-backend/internal/assistants"
)

// maxKnowledgeUpload caps knowledge base uploads at 10 MiB.
const maxKnowledgeUpload = 10 << 20

// AssistantService provides handlers for assistant management.
type AssistantService struct {
	store *assistants.Store
}

// NewAssistantService creates a new assistant service.
func NewAssistantService(store *assistants.Store) *AssistantService {
	return &AssistantService{store: store}
}

// SetupRoutes registers assistant routes on the given router group.
func (s *AssistantService) SetupRoutes(r *gin.RouterGroup) {
	a := r.Group("/assistants")
	{
		a.GET("/templates", s.TemplatesHandler())
		a.GET("/export", s.ExportHandler())
		a.POST("/import", s.ImportHandler())
		a.POST("/knowledge", s.KnowledgeUploadHandler())

		a.GET("", s.ListHandler())
		a.POST("", s.CreateHandler())
		a.GET("/:id", s.GetHandler())
		a.PUT("/:id", s.UpdateHandler())
		a.DELETE("/:id", s.DeleteHandler())
	}
}

func assistantErrorStatus(err error) int {
	switch {
	case errors.Is(err, assistants.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistants.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ListHandler returns the user's assistants. Pass active=true to get
// only the ones offered in chat.
func (s *AssistantService) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Query("username")
		activeOnly := c.Query("active") == "true"
		c.JSON(http.StatusOK, gin.H{"assistants": s.store.List(username, activeOnly)})
	}
}

// CreateHandler creates a new assistant.
func (s *AssistantService) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var a assistants.Assistant
		if err := c.ShouldBindJSON(&a); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		if err := s.store.Create(c.Query("username"), &a); err != nil {
			c.JSON(assistantErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

// GetHandler returns a single assistant.
func (s *AssistantService) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := s.store.Get(c.Query("username"), c.Param("id"))
		if err != nil {
			c.JSON(assistantErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// UpdateHandler replaces an assistant's editable fields.
func (s *AssistantService) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var a assistants.Assistant
		if err := c.ShouldBindJSON(&a); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		a.ID = c.Param("id")

		if err := s.store.Update(c.Query("username"), &a); err != nil {
			c.JSON(assistantErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// DeleteHandler removes an assistant.
func (s *AssistantService) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Delete(c.Query("username"), c.Param("id")); err != nil {
			c.JSON(assistantErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// TemplatesHandler returns the built-in prompt templates.
func (s *AssistantService) TemplatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"templates": assistants.Templates()})
	}
}

// ExportHandler returns the user's assistants as a JSON download.
func (s *AssistantService) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := s.store.Export(c.Query("username"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="assistants.json"`)
		c.Data(http.StatusOK, "application/json", data)
	}
}

// ImportHandler merges assistants from an exported JSON document.
func (s *AssistantService) ImportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxKnowledgeUpload))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body: " + err.Error()})
			return
		}

		added, err := s.store.Import(c.Query("username"), data)
		if err != nil {
			c.JSON(assistantErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "imported": added})
	}
}

// KnowledgeUploadHandler extracts plain text from an uploaded knowledge
// base file (txt or pdf) and returns it for inclusion in an assistant.
func (s *AssistantService) KnowledgeUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required: " + err.Error()})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxKnowledgeUpload))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file: " + err.Error()})
			return
		}

		text, err := assistants.ExtractKnowledge(header.Filename, data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"text":       text,
			"characters": len(text),
			"truncated":  len(text) == assistants.MaxKnowledgeLen,
		})
	}
}
