package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/harentsoar/clinic-api/internal/middleware"
	"github.com/harentsoar/clinic-api/internal/models"
)

// RegisterRoutes mounts every endpoint on r. limiter guards the code
// endpoints; nil disables it.
func (h *Handler) RegisterRoutes(r *gin.Engine, limiter *middleware.RateLimiter) {
	r.GET("/healthz", h.Health)

	codeGuard := []gin.HandlerFunc{}
	if limiter != nil {
		codeGuard = append(codeGuard, middleware.RateLimit(limiter))
	}

	// --- Registration ---
	userRoutes := r.Group("/users")
	{
		userRoutes.POST("/register-patient", append(codeGuard, h.RegisterPatient)...)
		userRoutes.POST("/save-patient-after-otp", h.SavePatientAfterOTP)
	}
	otpRoutes := r.Group("/2fa", codeGuard...)
	{
		otpRoutes.POST("/send", h.SendOTP)
		otpRoutes.POST("/verify", h.VerifyOTP)
	}

	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/login", h.Login)
	}

	apiRoutes := r.Group("/api")
	apiRoutes.Use(middleware.AuthMiddleware(h.Tokens)) // Protect all /api routes
	{
		apiRoutes.GET("/me", h.GetCurrentUser)
		apiRoutes.PUT("/me", h.UpdateCurrentUser)
		apiRoutes.GET("/doctors", h.ListDoctors)

		// Appointment Routes
		apiRoutes.GET("/appointments", h.GetAppointments)
		apiRoutes.POST("/appointments", middleware.RequireRole(models.RolePatient), h.CreateAppointment)
		staff := middleware.RequireRole(models.RoleDoctor, models.RoleAdmin)
		apiRoutes.PUT("/appointments/:id", staff, h.UpdateAppointment)
		apiRoutes.PATCH("/appointments/:id/cancel", staff, h.CancelAppointment)

		admin := apiRoutes.Group("/admin", middleware.RequireRole(models.RoleAdmin))
		admin.POST("/doctors", h.CreateDoctor)
		admin.POST("/admins", h.CreateAdmin)
	}
}
