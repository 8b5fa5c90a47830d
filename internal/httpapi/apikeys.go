package httpapi

import (
	"net/http"
	"time"

	"wallet-server/internal/store"

	"github.com/gin-gonic/gin"
)

type createApiKeyRequest struct {
	Name        string     `json:"name" binding:"required"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type apiKeyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toApiKeyResponse(k *store.ApiKey) apiKeyResponse {
	return apiKeyResponse{
		ID:          k.ID,
		Name:        k.Name,
		Permissions: k.Permissions,
		ExpiresAt:   k.ExpiresAt,
		CreatedAt:   k.CreatedAt,
	}
}

func (h *Handler) createApiKey(c *gin.Context) {
	var req createApiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	userID, err := userIDFromContext(c)
	if err != nil {
		writeError(c, err)
		return
	}

	plainKey, record, err := h.apikeys.Create(c.Request.Context(), userID, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := toApiKeyResponse(record)
	c.JSON(http.StatusOK, gin.H{
		"api_key": resp,
		"secret":  plainKey,
	})
}

func (h *Handler) listApiKeys(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		writeError(c, err)
		return
	}

	keys, err := h.apikeys.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toApiKeyResponse(k))
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": out})
}

func (h *Handler) revokeApiKey(c *gin.Context) {
	if err := h.apikeys.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
