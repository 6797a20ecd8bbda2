package handler

import (
	"errors"
	"net/http"

	"coinchart/internal/job"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ListTasks godoc
// @Summary      Scheduled tasks
// @Description  Run counts, failures and last error of every scheduled task
// @Tags         admin
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/admin/tasks [get]
func (h *Handler) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.tasks.Tasks()})
}

// RunTask godoc
// @Summary      Run a task now
// @Description  Runs one scheduled task synchronously and reports its outcome
// @Tags         admin
// @Produce      json
// @Security     ApiKeyAuth
// @Param        name  path  string  true  "Task name, e.g. ingest-binance"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/admin/tasks/{name}/run [post]
func (h *Handler) RunTask(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-task")
	defer span.End()

	name := c.Param("name")
	span.SetAttributes(attribute.String("task", name))

	err := h.tasks.RunNow(ctx, name)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "task": name})
	case errors.Is(err, job.ErrUnknownTask):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, job.ErrTaskBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		span.RecordError(err)
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "task": name, "error": err.Error()})
	}
}
