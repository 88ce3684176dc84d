package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/repository"
	"github.com/harentsoar/clinic-api/internal/services"
)

type createAppointmentRequest struct {
	DoctorID  int64  `json:"doctorId" binding:"required"`
	StartTime string `json:"startTime" binding:"required"`
	EndTime   string `json:"endTime" binding:"required"`
	Service   string `json:"service" binding:"required"`
}

// --- CREATE APPOINTMENT (patients only) ---
func (h *Handler) CreateAppointment(c *gin.Context) {
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	startTime, err1 := time.Parse(time.RFC3339, req.StartTime)
	endTime, err2 := time.Parse(time.RFC3339, req.EndTime)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time format, use RFC3339"})
		return
	}
	if !startTime.Before(endTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startTime must be before endTime"})
		return
	}

	ctx := c.Request.Context()
	doctor, err := h.Accounts.GetAccount(ctx, req.DoctorID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && doctor.Doctor == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown doctor"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	apt := &models.Appointment{
		PatientID: currentUserID(c),
		DoctorID:  req.DoctorID,
		StartTime: startTime,
		EndTime:   endTime,
		Service:   req.Service,
		Status:    models.AppointmentScheduled,
	}
	if err := h.Appointments.Create(ctx, apt); err != nil {
		h.Log.Error().Err(err).Msg("create appointment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create appointment"})
		return
	}
	if full, err := h.Appointments.GetByID(ctx, apt.ID); err == nil {
		apt = full
	}

	h.notify(ctx, apt, h.NotificationSvc.AppointmentConfirmed)
	c.JSON(http.StatusCreated, apt)
}

// --- GET APPOINTMENTS (role scoped, with filtering & sorting) ---
// Patients see their own appointments and doctors theirs; admins see all
// and may narrow with ?patientId= or ?doctorId=.
func (h *Handler) GetAppointments(c *gin.Context) {
	filter := models.AppointmentFilter{
		Status: c.Query("status"),
		Newest: c.Query("order") == "desc",
	}

	// Filter by date range (e.g., /api/appointments?startDate=2026-07-01&endDate=2026-07-31)
	if startDateStr := c.Query("startDate"); startDateStr != "" {
		startDate, err := time.Parse(models.DateLayout, startDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be YYYY-MM-DD"})
			return
		}
		filter.From = startDate
	}
	if endDateStr := c.Query("endDate"); endDateStr != "" {
		endDate, err := time.Parse(models.DateLayout, endDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be YYYY-MM-DD"})
			return
		}
		// include the entire end day
		filter.To = endDate.Add(24*time.Hour - time.Second)
	}
	if filter.Status != "" && !models.ValidAppointmentStatus(filter.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
		return
	}

	switch currentRole(c) {
	case models.RolePatient:
		filter.PatientID = currentUserID(c)
	case models.RoleDoctor:
		filter.DoctorID = currentUserID(c)
	case models.RoleAdmin:
		filter.PatientID, _ = strconv.ParseInt(c.Query("patientId"), 10, 64)
		filter.DoctorID, _ = strconv.ParseInt(c.Query("doctorId"), 10, 64)
	}

	appointments, err := h.Appointments.List(c.Request.Context(), filter)
	if err != nil {
		h.Log.Error().Err(err).Msg("list appointments")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve appointments"})
		return
	}
	c.JSON(http.StatusOK, appointments)
}

type updateAppointmentRequest struct {
	StartTime *string `json:"startTime,omitempty"`
	EndTime   *string `json:"endTime,omitempty"`
	Service   *string `json:"service,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// --- UPDATE APPOINTMENT (doctor/admin) ---
func (h *Handler) UpdateAppointment(c *gin.Context) {
	apt, ok := h.loadManagedAppointment(c)
	if !ok {
		return
	}

	var req updateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.StartTime == nil && req.EndTime == nil && req.Service == nil && req.Status == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}

	if req.StartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time format, use RFC3339"})
			return
		}
		apt.StartTime = t
	}
	if req.EndTime != nil {
		t, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time format, use RFC3339"})
			return
		}
		apt.EndTime = t
	}
	if req.Service != nil {
		apt.Service = *req.Service
	}
	if req.Status != nil {
		if !models.ValidAppointmentStatus(*req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
			return
		}
		apt.Status = *req.Status
	}
	if !apt.StartTime.Before(apt.EndTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startTime must be before endTime"})
		return
	}

	if err := h.Appointments.Update(c.Request.Context(), apt); err != nil {
		h.Log.Error().Err(err).Int64("appointment_id", apt.ID).Msg("update appointment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update appointment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Appointment updated successfully"})
}

// --- CANCEL APPOINTMENT (doctor/admin) ---
func (h *Handler) CancelAppointment(c *gin.Context) {
	apt, ok := h.loadManagedAppointment(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.Appointments.SetStatus(ctx, apt.ID, models.AppointmentCancelled); err != nil {
		h.Log.Error().Err(err).Int64("appointment_id", apt.ID).Msg("cancel appointment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel appointment"})
		return
	}
	apt.Status = models.AppointmentCancelled

	h.notify(ctx, apt, h.NotificationSvc.AppointmentCancelled)
	c.JSON(http.StatusOK, gin.H{"message": "Appointment cancelled successfully"})
}

// loadManagedAppointment fetches the :id appointment and checks that the
// caller may manage it: admins any, doctors only their own.
func (h *Handler) loadManagedAppointment(c *gin.Context) (*models.Appointment, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid appointment ID"})
		return nil, false
	}
	apt, err := h.Appointments.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
		return nil, false
	}
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	if currentRole(c) == models.RoleDoctor && apt.DoctorID != currentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied."})
		return nil, false
	}
	return apt, true
}

func (h *Handler) notify(ctx context.Context, apt *models.Appointment, send func(services.Recipient, *models.Appointment)) {
	if h.NotificationSvc == nil {
		return
	}
	patient, err := h.Accounts.GetAccount(ctx, apt.PatientID)
	if err != nil {
		h.Log.Warn().Err(err).Int64("patient_id", apt.PatientID).Msg("notification skipped: patient not found")
		return
	}
	send(services.Recipient{
		Name:  patient.DisplayName(),
		Email: patient.User.Email,
		Phone: patient.Phone(),
	}, apt)
}
