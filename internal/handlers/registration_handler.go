package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/services"
)

const (
	SessionCookie = "clinic_session"
	otpScreenPath = "/otpScreen"
)

type RegisterPatientRequest struct {
	FirstName       string `form:"firstName" binding:"required"`
	LastName        string `form:"lastName" binding:"required"`
	Email           string `form:"email" binding:"required,email"`
	Password        string `form:"password" binding:"required,min=8"`
	ConfirmPassword string `form:"confirmPassword" binding:"required"`
	Phone           string `form:"phone"`
	Street          string `form:"street"`
	City            string `form:"city"`
	State           string `form:"state"`
	PostalCode      string `form:"postalCode"`
	Allergies       string `form:"allergies"`
	MedicalHistory  string `form:"medicalHistory"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// sessionID returns the registration session id from the cookie, issuing a
// new one when create is set and the client has none.
func (h *Handler) sessionID(c *gin.Context, create bool) string {
	if id, err := c.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	if !create {
		return ""
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, int(h.SessionTTL.Seconds()), "/", "", h.SecureCookies, true)
	return id
}

// RegisterPatient accepts the multipart registration form with an optional
// "foto" upload, stages it and mails a verification code.
func (h *Handler) RegisterPatient(c *gin.Context) {
	var req RegisterPatientRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photo, err := readPhoto(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	form := services.RegistrationForm{
		Role:            models.RolePatient,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		Address: models.Address{
			Street:     req.Street,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
		},
		Allergies:      req.Allergies,
		MedicalHistory: req.MedicalHistory,
		Photo:          photo,
	}
	if err := h.Registration.Submit(c.Request.Context(), h.sessionID(c, true), form); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Registration received. Check your email for the verification code.",
		"redirectTo": otpScreenPath,
	})
}

func readPhoto(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("foto")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, &services.ValidationError{Field: "foto", Message: "could not be read"}
	}
	if fh.Size > services.MaxPhotoSize {
		return nil, &services.ValidationError{Field: "foto", Message: fmt.Sprintf("must be at most %d MB", services.MaxPhotoSize>>20)}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, services.MaxPhotoSize+1))
}

// SendOTP (re)sends a verification code, invalidating any earlier one.
func (h *Handler) SendOTP(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, services.Result{Success: false, Message: "A valid email is required"})
		return
	}
	res, err := h.OTP.Send(c.Request.Context(), req.Email)
	if err != nil {
		h.respondResult(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// VerifyOTP checks a code. The verification counts only for the
// registration staged under the caller's session cookie.
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, services.Result{Success: false, Message: "Email and code are required"})
		return
	}
	res, err := h.OTP.Verify(c.Request.Context(), h.sessionID(c, false), req.Email, req.Code)
	if err != nil {
		h.respondResult(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SavePatientAfterOTP writes the staged registration once the email has
// been verified.
func (h *Handler) SavePatientAfterOTP(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
		return
	}
	acct, err := h.Registration.Finalize(c.Request.Context(), h.sessionID(c, false), req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Patient registered successfully",
		"userId":  acct.User.ID,
	})
}

type CreateStaffRequest struct {
	Email         string                 `json:"email" binding:"required,email"`
	Password      string                 `json:"password" binding:"required,min=8"`
	FirstName     string                 `json:"firstName" binding:"required"`
	LastName      string                 `json:"lastName" binding:"required"`
	Phone         string                 `json:"phone"`
	Specialty     string                 `json:"specialty"`
	LicenseNumber string                 `json:"licenseNumber"`
	Schedule      []models.ScheduleEntry `json:"schedule"`
}

func (r CreateStaffRequest) form(role string) services.RegistrationForm {
	return services.RegistrationForm{
		Role:            role,
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.Password,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Phone:           r.Phone,
		Specialty:       r.Specialty,
		LicenseNumber:   r.LicenseNumber,
		Schedule:        r.Schedule,
	}
}

// CreateDoctor lets an administrator add a doctor with their schedule.
func (h *Handler) CreateDoctor(c *gin.Context) {
	h.createStaff(c, models.RoleDoctor)
}

func (h *Handler) CreateAdmin(c *gin.Context) {
	h.createStaff(c, models.RoleAdmin)
}

func (h *Handler) createStaff(c *gin.Context, role string) {
	var req CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct, err := h.Registration.RegisterDirect(c.Request.Context(), req.form(role))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}
