package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Chat is a stored conversation.
type Chat struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Backend     string `json:"backend"`
	Model       string `json:"model"`
	AssistantID string `json:"assistant_id,omitempty"`
	Pinned      bool   `json:"pinned"`
	Archived    bool   `json:"archived"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ChatMessage is a stored conversation turn.
type ChatMessage struct {
	ID             string `json:"id"`
	ChatID         string `json:"chat_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Backend        string `json:"backend,omitempty"`
	Model          string `json:"model,omitempty"`
	PromptTokens   int    `json:"prompt_tokens,omitempty"`
	ResponseTokens int    `json:"response_tokens,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// SetupChatRoutes registers chat history routes on the given group.
func SetupChatRoutes(r *gin.RouterGroup, db *sql.DB) {
	chats := r.Group("/chats")
	{
		chats.GET("", ListChatsHandler(db))
		chats.POST("", CreateChatHandler(db))
		chats.GET("/:id", GetChatHandler(db))
		chats.PUT("/:id", UpdateChatHandler(db))
		chats.DELETE("/:id", DeleteChatHandler(db))

		chats.POST("/:id/messages", CreateMessageHandler(db))
		chats.GET("/:id/export", ExportChatHandler(db))
	}
}

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var chat Chat
	var pinned, archived int
	err := row.Scan(&chat.ID, &chat.Title, &chat.Backend, &chat.Model, &chat.AssistantID,
		&pinned, &archived, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return nil, err
	}
	chat.Pinned = pinned != 0
	chat.Archived = archived != 0
	return &chat, nil
}

const chatColumns = `id, title, backend, model, assistant_id, pinned, archived, created_at, updated_at`

// ListChatsHandler returns all chats, pinned first, most recent next.
func ListChatsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `SELECT ` + chatColumns + ` FROM chats`
		if c.Query("archived") != "true" {
			query += ` WHERE archived = 0`
		}
		query += ` ORDER BY pinned DESC, updated_at DESC`

		rows, err := db.Query(query)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer rows.Close()

		chats := []Chat{}
		for rows.Next() {
			chat, err := scanChat(rows)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			chats = append(chats, *chat)
		}

		c.JSON(http.StatusOK, gin.H{"chats": chats})
	}
}

// CreateChatHandler creates a new chat.
func CreateChatHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title       string `json:"title"`
			Backend     string `json:"backend"`
			Model       string `json:"model"`
			AssistantID string `json:"assistant_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		if req.Title == "" {
			req.Title = "New Chat"
		}
		if req.Backend == "" {
			req.Backend = "ollama"
		}

		id := uuid.NewString()
		_, err := db.Exec(
			`INSERT INTO chats (id, title, backend, model, assistant_id) VALUES (?, ?, ?, ?, ?)`,
			id, req.Title, req.Backend, req.Model, req.AssistantID,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		chat, err := scanChat(db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, chat)
	}
}

// GetChatHandler returns a chat with its messages.
func GetChatHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		chat, err := scanChat(db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found: " + id})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		messages, err := loadMessages(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
	}
}

func loadMessages(db *sql.DB, chatID string) ([]ChatMessage, error) {
	rows, err := db.Query(
		`SELECT id, chat_id, role, content, backend, model, prompt_tokens, response_tokens, created_at
		 FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Backend, &m.Model,
			&m.PromptTokens, &m.ResponseTokens, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpdateChatHandler updates a chat's title, pin or archive state.
func UpdateChatHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var req struct {
			Title    *string `json:"title"`
			Pinned   *bool   `json:"pinned"`
			Archived *bool   `json:"archived"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		sets := []string{`updated_at = datetime('now')`}
		args := []any{}
		if req.Title != nil {
			sets = append(sets, "title = ?")
			args = append(args, *req.Title)
		}
		if req.Pinned != nil {
			sets = append(sets, "pinned = ?")
			args = append(args, boolToInt(*req.Pinned))
		}
		if req.Archived != nil {
			sets = append(sets, "archived = ?")
			args = append(args, boolToInt(*req.Archived))
		}
		args = append(args, id)

		res, err := db.Exec(`UPDATE chats SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found: " + id})
			return
		}

		chat, err := scanChat(db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, chat)
	}
}

// DeleteChatHandler removes a chat and its messages.
func DeleteChatHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		res, err := db.Exec(`DELETE FROM chats WHERE id = ?`, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found: " + id})
			return
		}

		// Cascade covers this when foreign keys are on, but the modernc
		// driver opens each connection with defaults.
		db.Exec(`DELETE FROM messages WHERE chat_id = ?`, id)

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// CreateMessageHandler appends a message to a chat.
func CreateMessageHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID := c.Param("id")

		var req struct {
			Role           string `json:"role" binding:"required"`
			Content        string `json:"content" binding:"required"`
			Backend        string `json:"backend"`
			Model          string `json:"model"`
			PromptTokens   int    `json:"prompt_tokens"`
			ResponseTokens int    `json:"response_tokens"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		if req.Role != "user" && req.Role != "assistant" && req.Role != "system" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user, assistant or system"})
			return
		}

		var exists int
		if err := db.QueryRow(`SELECT COUNT(*) FROM chats WHERE id = ?`, chatID).Scan(&exists); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if exists == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found: " + chatID})
			return
		}

		id := uuid.NewString()
		_, err := db.Exec(
			`INSERT INTO messages (id, chat_id, role, content, backend, model, prompt_tokens, response_tokens)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, chatID, req.Role, req.Content, req.Backend, req.Model, req.PromptTokens, req.ResponseTokens,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		db.Exec(`UPDATE chats SET updated_at = datetime('now') WHERE id = ?`, chatID)

		c.JSON(http.StatusCreated, gin.H{"id": id, "chat_id": chatID})
	}
}

// ExportChatHandler returns a chat transcript as a JSON download, or as
// markdown with ?format=markdown.
func ExportChatHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		chat, err := scanChat(db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found: " + id})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		messages, err := loadMessages(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if c.Query("format") == "markdown" {
			var b strings.Builder
			fmt.Fprintf(&b, "# %s\n\n", chat.Title)
			for _, m := range messages {
				fmt.Fprintf(&b, "**%s**: %s\n\n", m.Role, m.Content)
			}
			c.Header("Content-Disposition", `attachment; filename="chat.md"`)
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(b.String()))
			return
		}

		c.Header("Content-Disposition", `attachment; filename="chat.json"`)
		c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
