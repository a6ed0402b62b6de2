package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SetupSettingsRoutes registers settings and usage routes.
func SetupSettingsRoutes(r *gin.RouterGroup, db *sql.DB) {
	r.GET("/settings", ListSettingsHandler(db))
	r.PUT("/settings/:key", SetSettingHandler(db))
	r.DELETE("/settings/:key", DeleteSettingHandler(db))

	r.GET("/usage", UsageStatsHandler(db))
}

// credentialKey reports whether a settings key looks like a secret.
// Credentials travel with each chat request and are never persisted.
func credentialKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "api_key") || strings.Contains(k, "apikey") ||
		strings.Contains(k, "token") || strings.Contains(k, "secret")
}

// ListSettingsHandler returns all settings as a key-value map.
func ListSettingsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(`SELECT key, value FROM settings ORDER BY key`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer rows.Close()

		settings := map[string]string{}
		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			settings[key] = value
		}

		c.JSON(http.StatusOK, gin.H{"settings": settings})
	}
}

// SetSettingHandler upserts a setting value.
func SetSettingHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if credentialKey(key) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "credentials cannot be stored as settings"})
			return
		}

		var req struct {
			Value string `json:"value"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		_, err := db.Exec(
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
			key, req.Value,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "key": key})
	}
}

// DeleteSettingHandler removes a setting.
func DeleteSettingHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := db.Exec(`DELETE FROM settings WHERE key = ?`, c.Param("key")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// UsageStatsHandler aggregates usage events per backend.
func UsageStatsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(
			`SELECT backend,
			        COUNT(*),
			        SUM(prompt_tokens),
			        SUM(response_tokens),
			        SUM(success),
			        AVG(duration_ms)
			 FROM usage_events GROUP BY backend ORDER BY backend`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer rows.Close()

		type backendUsage struct {
			Backend        string  `json:"backend"`
			Requests       int     `json:"requests"`
			PromptTokens   int     `json:"prompt_tokens"`
			ResponseTokens int     `json:"response_tokens"`
			Successes      int     `json:"successes"`
			AvgDurationMs  float64 `json:"avg_duration_ms"`
		}

		usage := []backendUsage{}
		for rows.Next() {
			var u backendUsage
			if err := rows.Scan(&u.Backend, &u.Requests, &u.PromptTokens, &u.ResponseTokens,
				&u.Successes, &u.AvgDurationMs); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			usage = append(usage, u)
		}

		c.JSON(http.StatusOK, gin.H{"usage": usage})
	}
}
