package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vlazic/mcphub/internal/services"
)

const configWarningHeader = "X-Config-Warning"

type ConfigHandler struct {
	mcpManager *services.MCPManagerService
}

func NewConfigHandler(mcpManager *services.MCPManagerService) *ConfigHandler {
	return &ConfigHandler{
		mcpManager: mcpManager,
	}
}

type configUpdateRequest struct {
	Config map[string]interface{} `json:"config" binding:"required"`
}

func (h *ConfigHandler) GetClientConfig(c *gin.Context) {
	result, err := h.mcpManager.ClientConfig()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if result.Corrupt {
		c.Header(configWarningHeader, "client config is not valid JSON; showing an empty document")
	}
	c.JSON(http.StatusOK, result.Document)
}

func (h *ConfigHandler) UpdateClientConfig(c *gin.Context) {
	var req configUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	if err := h.mcpManager.ReplaceClientConfig(req.Config); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
