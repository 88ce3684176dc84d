package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harentsoar/clinic-api/internal/repository"
	"github.com/harentsoar/clinic-api/internal/services"
	"github.com/harentsoar/clinic-api/internal/utils"
)

// Handler carries the stores and services every HTTP handler needs. The
// handlers themselves are methods on it, one file per area.
type Handler struct {
	Accounts        repository.AccountRepository
	Appointments    repository.AppointmentRepository
	Registration    *services.RegistrationService
	OTP             *services.OTPService
	NotificationSvc *services.NotificationService
	Tokens          *utils.TokenIssuer
	Log             zerolog.Logger

	// SessionTTL bounds the registration session cookie.
	SessionTTL time.Duration
	// SecureCookies marks the session cookie Secure; on in production.
	SecureCookies bool
	// Ping reports backing store health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

func NewHandler(
	accounts repository.AccountRepository,
	appointments repository.AppointmentRepository,
	registration *services.RegistrationService,
	otp *services.OTPService,
	notificationSvc *services.NotificationService,
	tokens *utils.TokenIssuer,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		Accounts:        accounts,
		Appointments:    appointments,
		Registration:    registration,
		OTP:             otp,
		NotificationSvc: notificationSvc,
		Tokens:          tokens,
		Log:             log,
		SessionTTL:      30 * time.Minute,
	}
}
