package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/repository"
	"github.com/harentsoar/clinic-api/internal/utils"
)

// MaxPhotoSize caps an uploaded profile photo.
const MaxPhotoSize = 5 << 20

var allowedPhotoTypes = []string{"image/jpeg", "image/png", "image/webp"}

// RegistrationForm is the raw input of a registration, either from the
// public patient form or from an administrator.
type RegistrationForm struct {
	Role            string
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Phone           string
	Address         models.Address
	Allergies       string
	MedicalHistory  string
	Specialty       string
	LicenseNumber   string
	Schedule        []models.ScheduleEntry
	Photo           []byte
}

// RegistrationService drives a registration from the submitted form to the
// durable account: stage, send a code, and once the code is verified write
// the account in one transaction.
type RegistrationService struct {
	accounts  repository.AccountRepository
	otp       *OTPService
	stager    *Stager
	dbTimeout time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewRegistrationService wires the orchestrator. otp and stager may be nil
// when only RegisterDirect is used.
func NewRegistrationService(accounts repository.AccountRepository, otp *OTPService, stager *Stager, dbTimeout time.Duration, log zerolog.Logger) *RegistrationService {
	return &RegistrationService{
		accounts:  accounts,
		otp:       otp,
		stager:    stager,
		dbTimeout: dbTimeout,
		log:       log.With().Str("component", "registration").Logger(),
		now:       time.Now,
	}
}

// Submit validates a self-service patient registration, stages it for
// sessionID and mails a verification code to the address given. If the
// code cannot be sent the stage stays a draft and the error is returned.
func (s *RegistrationService) Submit(ctx context.Context, sessionID string, form RegistrationForm) error {
	if form.Role == "" {
		form.Role = models.RolePatient
	}
	if form.Role != models.RolePatient {
		return invalid("role", "only patients can register themselves")
	}

	reg, err := s.prepare(ctx, form)
	if err != nil {
		return err
	}
	reg.State = models.RegistrationDraft
	if err := s.stager.Stage(ctx, sessionID, reg); err != nil {
		return err
	}

	if _, err := s.otp.Send(ctx, reg.Email); err != nil {
		return err
	}

	reg.State = models.RegistrationOtpSent
	if err := s.stager.Stage(ctx, sessionID, reg); err != nil {
		return err
	}
	s.log.Info().Str("email", reg.Email).Str("session", sessionID).Msg("registration staged")
	return nil
}

// Finalize persists the registration staged for sessionID once email has
// been verified. A missing or foreign stage yields ErrStaleRegistration and
// writes nothing. Without a verification of email made from sessionID it
// yields ErrOtpNotVerified and keeps the stage for a later attempt. Any other outcome discards the stage.
func (s *RegistrationService) Finalize(ctx context.Context, sessionID, email string) (*models.Account, error) {
	email = normalizeEmail(email)

	reg, err := s.stager.Retrieve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if reg.Email != email {
		if err := s.stager.Clear(ctx, sessionID); err != nil {
			s.log.Error().Err(err).Str("session", sessionID).Msg("clear mismatched registration")
		}
		return nil, ErrStaleRegistration
	}

	// only a verification made from this session counts
	verified, err := s.otp.ConsumeVerified(ctx, sessionID, email)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, ErrOtpNotVerified
	}

	reg, err = s.stager.Consume(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	acct := reg.Account()
	if err := s.persist(ctx, acct); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("registration not persisted")
		return nil, err
	}
	s.log.Info().Int64("user_id", acct.User.ID).Str("role", acct.User.Role).Msg("account registered")
	return acct, nil
}

// RegisterDirect creates an account without email verification. It is the
// path for administrators creating staff and for the bootstrap admin.
func (s *RegistrationService) RegisterDirect(ctx context.Context, form RegistrationForm) (*models.Account, error) {
	if !models.ValidRole(form.Role) {
		return nil, invalid("role", "must be patient, doctor or admin")
	}
	reg, err := s.prepare(ctx, form)
	if err != nil {
		return nil, err
	}
	acct := reg.Account()
	if err := s.persist(ctx, acct); err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", acct.User.ID).Str("role", acct.User.Role).Msg("account created directly")
	return acct, nil
}

// prepare validates form, checks the email is free and returns the
// registration with the password already hashed.
func (s *RegistrationService) prepare(ctx context.Context, form RegistrationForm) (*models.PendingRegistration, error) {
	form.Email = normalizeEmail(form.Email)
	if err := validateForm(form); err != nil {
		return nil, err
	}

	var photoType string
	if len(form.Photo) > 0 {
		t, err := sniffPhoto(form.Photo)
		if err != nil {
			return nil, err
		}
		photoType = t
	}

	taken, err := s.emailExists(ctx, form.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := utils.HashPassword(form.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	reg := &models.PendingRegistration{
		Role:           form.Role,
		Email:          form.Email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(form.FirstName),
		LastName:       strings.TrimSpace(form.LastName),
		Phone:          strings.TrimSpace(form.Phone),
		Address:        form.Address,
		Allergies:      form.Allergies,
		MedicalHistory: form.MedicalHistory,
		Specialty:      strings.TrimSpace(form.Specialty),
		LicenseNumber:  strings.TrimSpace(form.LicenseNumber),
		Schedule:       append([]models.ScheduleEntry(nil), form.Schedule...),
		Photo:          form.Photo,
		PhotoMimeType:  photoType,
		CreatedAt:      s.now().UTC(),
	}
	for i := range reg.Schedule {
		if reg.Schedule[i].Status == "" {
			reg.Schedule[i].Status = models.ScheduleAvailable
		}
	}
	if err := reg.Account().Validate(); err != nil {
		return nil, invalid("", err.Error())
	}
	return reg, nil
}

func (s *RegistrationService) emailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := s.withDBTimeout(ctx)
	defer cancel()
	taken, err := s.accounts.EmailExists(ctx, email)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, ErrPersistenceTimeout
		}
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return taken, nil
}

func (s *RegistrationService) persist(ctx context.Context, acct *models.Account) error {
	ctx, cancel := s.withDBTimeout(ctx)
	defer cancel()

	err := s.accounts.CreateAccount(ctx, acct)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrEmailTaken
	case errors.Is(err, repository.ErrDuplicateLicense):
		return invalid("licenseNumber", "is already registered")
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrPersistenceTimeout
	default:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}

func (s *RegistrationService) withDBTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.dbTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.dbTimeout)
}

func validateForm(f RegistrationForm) error {
	if f.Email == "" {
		return invalid("email", "is required")
	}
	if addr, err := mail.ParseAddress(f.Email); err != nil || addr.Address != f.Email {
		return invalid("email", "is not a valid address")
	}
	if f.Password == "" {
		return invalid("password", "is required")
	}
	if len(f.Password) < 8 {
		return invalid("password", "must be at least 8 characters")
	}
	if len(f.Password) > utils.MaxPasswordBytes {
		return invalid("password", fmt.Sprintf("must be at most %d bytes", utils.MaxPasswordBytes))
	}
	if f.Password != f.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(f.FirstName) == "" {
		return invalid("firstName", "is required")
	}
	if strings.TrimSpace(f.LastName) == "" {
		return invalid("lastName", "is required")
	}
	if f.Role == models.RoleDoctor {
		if strings.TrimSpace(f.Specialty) == "" {
			return invalid("specialty", "is required")
		}
		if strings.TrimSpace(f.LicenseNumber) == "" {
			return invalid("licenseNumber", "is required")
		}
	}
	return nil
}

// sniffPhoto checks the upload's content, not its declared type, against
// the accepted image formats.
func sniffPhoto(data []byte) (string, error) {
	if len(data) > MaxPhotoSize {
		return "", invalid("foto", fmt.Sprintf("must be at most %d MB", MaxPhotoSize>>20))
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedPhotoTypes...) {
		return "", invalid("foto", "must be a JPEG, PNG or WebP image")
	}
	return mt.String(), nil
}
