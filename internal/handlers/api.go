package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/models"
	"github.com/vlazic/mcphub/internal/services"
)

type APIHandler struct {
	mcpManager *services.MCPManagerService
	tasks      *services.TaskRunner
	logger     *zap.Logger
}

func NewAPIHandler(mcpManager *services.MCPManagerService, tasks *services.TaskRunner, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		mcpManager: mcpManager,
		tasks:      tasks,
		logger:     logger,
	}
}

func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) InstallServer(c *gin.Context) {
	var descriptor models.ServerDescriptor
	if err := c.ShouldBindJSON(&descriptor); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	var installed *models.InstalledServer
	task := h.tasks.Submit("install", descriptor.Slug(), func(ctx context.Context) error {
		server, err := h.mcpManager.Install(ctx, &descriptor)
		installed = server
		return err
	})

	if !h.wait(c, task) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "server": installed})
}

func (h *APIHandler) UninstallServer(c *gin.Context) {
	name := c.Param("name")

	task := h.tasks.Submit("uninstall", models.Slug(name), func(ctx context.Context) error {
		return h.mcpManager.Uninstall(ctx, name)
	})

	if !h.wait(c, task) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *APIHandler) GetServers(c *gin.Context) {
	servers, err := h.mcpManager.ListServers(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

func (h *APIHandler) GetServer(c *gin.Context) {
	server, err := h.mcpManager.GetServer(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, server)
}

func (h *APIHandler) ReconfigureServer(c *gin.Context) {
	var update models.ServerUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	server, err := h.mcpManager.Reconfigure(c.Param("name"), &update)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "server": server})
}

func (h *APIHandler) StartServer(c *gin.Context) {
	info, err := h.mcpManager.Start(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "process": info})
}

func (h *APIHandler) StopServer(c *gin.Context) {
	stopped, err := h.mcpManager.Stop(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "stopped": stopped})
}

func (h *APIHandler) SyncClientConfig(c *gin.Context) {
	changed, err := h.mcpManager.Reconcile()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "changed": changed})
}

func (h *APIHandler) GetTask(c *gin.Context) {
	task, ok := h.tasks.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "task not found")
		return
	}
	c.JSON(http.StatusOK, task.Snapshot())
}

// wait blocks on task unless the caller passed wait=false, in which case it answers
// 202 with the task id. It reports whether the task succeeded and the caller should
// write the success response.
func (h *APIHandler) wait(c *gin.Context, task *services.Task) bool {
	if c.Query("wait") == "false" {
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "task_id": task.ID})
		return false
	}

	if err := task.Wait(c.Request.Context()); err != nil {
		if c.Request.Context().Err() != nil {
			// The client went away; the task keeps running and can be polled.
			c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "task_id": task.ID})
			return false
		}
		writeServiceError(c, err)
		return false
	}
	return true
}

func writeError(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"status": "error", "detail": detail})
}

func writeServiceError(c *gin.Context, err error) {
	writeError(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidDescriptor),
		errors.Is(err, services.ErrInvalidUpdate),
		errors.Is(err, services.ErrInvalidClientConfig):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAlreadyInstalled), errors.Is(err, services.ErrOperationInProgress):
		return http.StatusConflict
	case errors.Is(err, services.ErrEntryPointNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
