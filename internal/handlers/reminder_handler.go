package handler

import (
	"net/http"

	"clinic-operations-backend/internal/services/reminder"

	"github.com/gin-gonic/gin"
)

type ReminderHandler struct {
	scheduler *reminder.Scheduler
}

func NewReminderHandler(s *reminder.Scheduler) *ReminderHandler {
	return &ReminderHandler{scheduler: s}
}

func (h *ReminderHandler) Armed(c *gin.Context) {
	armed := h.scheduler.Armed()
	c.JSON(http.StatusOK, gin.H{"items": armed, "count": len(armed)})
}
