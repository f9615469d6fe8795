package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vlazic/mcphub/internal/services"
)

type RegistryHandler struct {
	registry *services.RegistryClient
}

func NewRegistryHandler(registry *services.RegistryClient) *RegistryHandler {
	return &RegistryHandler{
		registry: registry,
	}
}

func (h *RegistryHandler) SearchServers(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if _, err := h.registry.Fetch(c.Request.Context(), true); err != nil {
			writeError(c, http.StatusBadGateway, err.Error())
			return
		}
	}

	entries, err := h.registry.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": entries})
}

func (h *RegistryHandler) GetServer(c *gin.Context) {
	entry, err := h.registry.Lookup(c.Request.Context(), c.Param("name"))
	if err != nil {
		if services.IsNotFound(err) {
			writeError(c, http.StatusNotFound, err.Error())
			return
		}
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"server": entry, "descriptor": entry.Descriptor()})
}
