package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"assistant-webui-backend/internal/llm"
)

// ModelService provides handlers for local model management. Only the
// Ollama backend supports pull and delete; hosted providers expose a
// fixed or credential-scoped catalogue via the chat service.
type ModelService struct {
	manager *llm.Manager
}

// NewModelService creates a new model service.
func NewModelService(manager *llm.Manager) *ModelService {
	return &ModelService{manager: manager}
}

// SetupRoutes registers model routes on the given router group.
func (s *ModelService) SetupRoutes(r *gin.RouterGroup) {
	r.GET("/models", s.ListModelsHandler())
	r.POST("/models/pull", s.PullModelHandler())
	r.DELETE("/models/:name", s.DeleteModelHandler())
}

// localBackend returns the registered Ollama backend.
func (s *ModelService) localBackend(c *gin.Context) (llm.Backend, bool) {
	backend, ok := s.manager.Get(string(llm.BackendOllama))
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no local backend configured"})
		return nil, false
	}
	return backend, true
}

// ListModelsHandler returns locally available models.
func (s *ModelService) ListModelsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		backend, ok := s.localBackend(c)
		if !ok {
			return
		}

		models, err := backend.ListModels(c.Request.Context())
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"error": "failed to list models: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"models": models})
	}
}

// PullModelHandler downloads a model, streaming progress as ndjson.
func (s *ModelService) PullModelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		backend, ok := s.localBackend(c)
		if !ok {
			return
		}

		pullable, ok := backend.(llm.PullableBackend)
		if !ok {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "backend does not support model pull"})
			return
		}

		c.Header("Content-Type", "application/x-ndjson")
		c.Header("Cache-Control", "no-cache")

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		err := pullable.PullModel(c.Request.Context(), req.Name, func(p llm.PullProgress) error {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if _, err := c.Writer.Write(append(data, '\n')); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})

		if err != nil {
			errResp := gin.H{"error": err.Error()}
			data, _ := json.Marshal(errResp)
			c.Writer.Write(append(data, '\n'))
			flusher.Flush()
		}
	}
}

// DeleteModelHandler removes a local model.
func (s *ModelService) DeleteModelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "model name required"})
			return
		}

		backend, ok := s.localBackend(c)
		if !ok {
			return
		}

		deletable, ok := backend.(llm.DeletableBackend)
		if !ok {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "backend does not support model delete"})
			return
		}

		if err := deletable.DeleteModel(c.Request.Context(), name); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": "failed to delete model: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": name})
	}
}
