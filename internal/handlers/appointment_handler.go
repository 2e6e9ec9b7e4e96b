package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/repository"
	"clinic-operations-backend/internal/services/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentHandler struct {
	service *lifecycle.Service
}

func NewAppointmentHandler(s *lifecycle.Service) *AppointmentHandler {
	return &AppointmentHandler{service: s}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "id", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AppointmentHandler) Schedule(c *gin.Context) {
	var payload struct {
		PatientRef string           `json:"patient_ref" binding:"required"`
		When       time.Time        `json:"when"`
		Reason     string           `json:"reason"`
		Kind       models.VisitKind `json:"kind"`
		Amount     decimal.Decimal  `json:"amount"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "body", "invalid payload: patient_ref is required and when must be RFC 3339")
		return
	}

	result, err := h.service.Schedule(c.Request.Context(), lifecycle.ScheduleRequest{
		PatientRef: payload.PatientRef,
		When:       payload.When,
		Reason:     payload.Reason,
		Kind:       payload.Kind,
		Amount:     payload.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *AppointmentHandler) List(c *gin.Context) {
	f := repository.AppointmentFilter{
		Status:     models.AppointmentStatus(c.Query("status")),
		PatientRef: c.Query("patient_ref"),
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, key, key+" must be RFC 3339")
			return
		}
		*dst = &t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit", "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	items, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *AppointmentHandler) History(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	events, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events})
}

func (h *AppointmentHandler) CanExecute(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	allowed, err := h.service.CanExecute(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointment_id": id, "can_execute": allowed})
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	// the body is optional
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "body", "invalid payload")
		return
	}

	appt, err := h.service.Cancel(c.Request.Context(), id, payload.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "appointment cancelled", "appointment": appt})
}

func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		When time.Time `json:"when"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.When.IsZero() {
		badRequest(c, "when", "when is required and must be RFC 3339")
		return
	}

	appt, err := h.service.Reschedule(c.Request.Context(), id, payload.When)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "appointment rescheduled", "appointment": appt})
}

func (h *AppointmentHandler) MarkDone(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	appt, err := h.service.MarkDone(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "appointment done", "appointment": appt})
}
