// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/triggerstore/internal/api/handlers"
	"github.com/andresuchdata/triggerstore/internal/api/middleware"
	"github.com/andresuchdata/triggerstore/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Gateway *storage.Gateway
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if services == nil {
		return router
	}

	if services.Metrics != nil {
		router.GET("/metrics", gin.WrapH(services.Metrics))
	}

	if services.Gateway != nil {
		storageHandler := handlers.NewStorageHandler(services.Gateway)
		router.GET("/ready", storageHandler.Ready)

		apiGroup := router.Group("/api/v1")
		{
			apiGroup.GET("/account", storageHandler.GetAccount)
			apiGroup.GET("/workflows/:state", storageHandler.ListWorkflows)
			apiGroup.GET("/blob", storageHandler.DownloadBlob)

			blobGroup := apiGroup.Group("/blobs/:container")
			{
				blobGroup.PUT("/*object", storageHandler.UploadText)
				blobGroup.GET("/*object", storageHandler.DownloadText)
				blobGroup.DELETE("/*object", storageHandler.DeleteBlob)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
