package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/triggerstore/internal/domain"
	"github.com/andresuchdata/triggerstore/internal/storage"
	"github.com/andresuchdata/triggerstore/pkg/logger"
	"github.com/gin-gonic/gin"
)

type StorageHandler struct {
	gateway *storage.Gateway
}

func NewStorageHandler(gateway *storage.Gateway) *StorageHandler {
	return &StorageHandler{gateway: gateway}
}

// Ready reports 200 when the storage account answers and 503 otherwise.
func (h *StorageHandler) Ready(c *gin.Context) {
	result := h.gateway.CheckAvailability(c.Request.Context())
	if !result.Available {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": result.Kind.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *StorageHandler) GetAccount(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Account())
}

// ListWorkflows lists trigger files for a state. An optional limit stops the
// listing after that many files.
func (h *StorageHandler) ListWorkflows(c *gin.Context) {
	state, _ := domain.ParseWorkflowState(c.Param("state"))
	if state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	files := make([]domain.TriggerFile, 0)
	for file, err := range h.gateway.WorkflowsByState(c.Request.Context(), state) {
		if err != nil {
			storageError(c, err)
			return
		}
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"state": state.Prefix(), "files": files})
}

// UploadText stores the request body as the object's text content.
func (h *StorageHandler) UploadText(c *gin.Context) {
	container, object, ok := blobParams(c)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	uri, err := h.gateway.UploadText(c.Request.Context(), string(body), container, object)
	if err != nil {
		storageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"uri": uri})
}

func (h *StorageHandler) DownloadText(c *gin.Context) {
	container, object, ok := blobParams(c)
	if !ok {
		return
	}

	text, err := h.gateway.DownloadText(c.Request.Context(), container, object)
	if err != nil {
		storageError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

// DownloadBlob resolves ?ref= in any of the accepted reference forms.
func (h *StorageHandler) DownloadBlob(c *gin.Context) {
	ref := strings.TrimSpace(c.Query("ref"))
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref is required"})
		return
	}

	data, err := h.gateway.DownloadBlob(c.Request.Context(), ref)
	if err != nil {
		storageError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (h *StorageHandler) DeleteBlob(c *gin.Context) {
	container, object, ok := blobParams(c)
	if !ok {
		return
	}

	if err := h.gateway.DeleteIfExists(c.Request.Context(), container, object); err != nil {
		storageError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func blobParams(c *gin.Context) (string, string, bool) {
	container := c.Param("container")
	object := strings.TrimPrefix(c.Param("object"), "/")
	if container == "" || object == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "container and object are required"})
		return "", "", false
	}
	return container, object, true
}

func storageError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrMalformedReference):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrInvalidText):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		logger.Log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("storage request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
