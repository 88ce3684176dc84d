package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harentsoar/clinic-api/internal/kvstore"
)

const (
	otpDigits = 6

	otpKeyPrefix      = "otp:"
	verifiedKeyPrefix = "otp-verified:"

	// expiredRetention keeps an expired entry around long enough for Verify
	// to report it as expired rather than missing.
	expiredRetention = time.Hour

	verifyRetries = 5
)

var errOtpContended = errors.New("otp entry kept changing")

// Result is the {success, message} body returned by the 2fa endpoints.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OTPConfig tunes code lifetime and the wrong-guess cap.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	MailTimeout time.Duration
	// VerifiedTTL is how long a successful verification may be redeemed by
	// the finalize step.
	VerifiedTTL time.Duration
}

type otpEntry struct {
	// ID tells apart two sends that produced the same code.
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
}

// OTPService issues and checks the one-time codes mailed during
// registration. At most one live code exists per email.
type OTPService struct {
	store    kvstore.Store
	mailer   Mailer
	cfg      OTPConfig
	log      zerolog.Logger
	now      func() time.Time
	generate func() (string, error)
}

// NewOTPService returns an OTPService. Zero MaxAttempts and VerifiedTTL
// take defaults.
func NewOTPService(store kvstore.Store, mailer Mailer, cfg OTPConfig, log zerolog.Logger) *OTPService {
	if cfg.VerifiedTTL <= 0 {
		cfg.VerifiedTTL = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &OTPService{
		store:    store,
		mailer:   mailer,
		cfg:      cfg,
		log:      log.With().Str("component", "otp").Logger(),
		now:      time.Now,
		generate: GenerateOTP,
	}
}

// GenerateOTP returns a uniformly random 6-digit numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Send generates a fresh code for email, replacing any previous one, and
// mails it. If the mail cannot be delivered the new code is discarded and
// ErrOtpDispatchFailed is returned.
func (s *OTPService) Send(ctx context.Context, email string) (Result, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Result{}, invalid("email", "is required")
	}

	code, err := s.generate()
	if err != nil {
		return Result{}, fmt.Errorf("generate otp: %w", err)
	}
	entry := otpEntry{ID: uuid.NewString(), Code: code, ExpiresAt: s.now().Add(s.cfg.TTL)}
	raw, err := json.Marshal(entry)
	if err != nil {
		return Result{}, fmt.Errorf("encode otp: %w", err)
	}
	if err := s.store.Set(ctx, otpKeyPrefix+email, raw, s.cfg.TTL+expiredRetention); err != nil {
		return Result{}, fmt.Errorf("store otp: %w", err)
	}

	mailCtx := ctx
	if s.cfg.MailTimeout > 0 {
		var cancel context.CancelFunc
		mailCtx, cancel = context.WithTimeout(ctx, s.cfg.MailTimeout)
		defer cancel()
	}
	body := fmt.Sprintf("Your verification code is: %s\nIt expires in %d minutes.", code, int(s.cfg.TTL.Minutes()))
	if err := s.mailer.Send(mailCtx, email, "Your clinic verification code", body); err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("otp dispatch failed")
		// a newer send may already have replaced this entry
		if _, derr := s.store.CompareAndDelete(ctx, otpKeyPrefix+email, raw); derr != nil {
			s.log.Error().Err(derr).Str("email", email).Msg("discard undelivered otp")
		}
		return Result{}, fmt.Errorf("%w: %v", ErrOtpDispatchFailed, err)
	}

	s.log.Info().Str("email", email).Time("expires_at", entry.ExpiresAt).Msg("otp sent")
	return Result{Success: true, Message: "Verification code sent to " + email}, nil
}

// Verify checks code against the live entry for email. Expired, missing,
// wrong and exhausted codes are reported with distinct errors. A wrong code
// keeps the entry for another try; every other outcome removes it.
//
// A successful verification is recorded for sessionID only, so it can be
// redeemed by the registration staged in that session and no other. With
// no session the code is still checked and consumed but nothing is
// recorded.
//
// Every write is conditional on the entry read at the start, so a resend
// racing with Verify is never overwritten and a replaced code is never
// accepted. A lost race re-reads the entry and decides again.
func (s *OTPService) Verify(ctx context.Context, sessionID, email, code string) (Result, error) {
	email = normalizeEmail(email)
	key := otpKeyPrefix + email
	code = strings.TrimSpace(code)

	for try := 0; try < verifyRetries; try++ {
		raw, entry, err := s.get(ctx, key)
		if err != nil {
			return Result{}, err
		}

		if s.now().After(entry.ExpiresAt) {
			ok, err := s.store.CompareAndDelete(ctx, key, raw)
			if err != nil {
				return Result{}, fmt.Errorf("delete expired otp: %w", err)
			}
			if !ok {
				continue
			}
			return Result{}, ErrOtpExpired
		}

		if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(code)) != 1 {
			done, err := s.recordMismatch(ctx, key, raw, entry)
			if !done {
				continue
			}
			return Result{}, err
		}

		ok, err := s.store.CompareAndDelete(ctx, key, raw)
		if err != nil {
			return Result{}, fmt.Errorf("consume otp: %w", err)
		}
		if !ok {
			// the entry changed since it was read
			continue
		}
		if sessionID != "" {
			if err := s.store.Set(ctx, verifiedKey(sessionID, email), []byte(email), s.cfg.VerifiedTTL); err != nil {
				return Result{}, fmt.Errorf("mark email verified: %w", err)
			}
		}

		s.log.Info().Str("email", email).Str("session", sessionID).Msg("otp verified")
		return Result{Success: true, Message: "Email verified"}, nil
	}
	return Result{}, fmt.Errorf("verify otp for %s: %w", email, errOtpContended)
}

// recordMismatch counts a wrong guess against the entry read as raw. It
// reports false if the entry changed meanwhile and nothing was written.
func (s *OTPService) recordMismatch(ctx context.Context, key string, raw []byte, entry *otpEntry) (bool, error) {
	entry.Attempts++
	if entry.Attempts >= s.cfg.MaxAttempts {
		ok, err := s.store.CompareAndDelete(ctx, key, raw)
		if err != nil {
			return true, fmt.Errorf("delete exhausted otp: %w", err)
		}
		if !ok {
			return false, nil
		}
		s.log.Warn().Str("key", key).Int("attempts", entry.Attempts).Msg("otp attempts exhausted")
		return true, ErrOtpTooManyAttempts
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return true, fmt.Errorf("encode otp: %w", err)
	}
	ok, err := s.store.CompareAndSwap(ctx, key, raw, b)
	if err != nil {
		return true, fmt.Errorf("count otp attempt: %w", err)
	}
	if !ok {
		return false, nil
	}
	return true, ErrOtpMismatch
}

// ConsumeVerified redeems the verification of email recorded for
// sessionID. It reports false if there is none, including when another
// caller redeemed it first.
func (s *OTPService) ConsumeVerified(ctx context.Context, sessionID, email string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	ok, err := s.store.Delete(ctx, verifiedKey(sessionID, normalizeEmail(email)))
	if err != nil {
		return false, fmt.Errorf("consume verification: %w", err)
	}
	return ok, nil
}

// IsVerified reports whether sessionID holds an unredeemed verification of
// email.
func (s *OTPService) IsVerified(ctx context.Context, sessionID, email string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	_, err := s.store.Get(ctx, verifiedKey(sessionID, normalizeEmail(email)))
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read verification: %w", err)
	}
	return true, nil
}

func verifiedKey(sessionID, email string) string {
	return verifiedKeyPrefix + sessionID + ":" + email
}

func (s *OTPService) get(ctx context.Context, key string) ([]byte, *otpEntry, error) {
	b, err := s.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil, ErrOtpNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load otp: %w", err)
	}
	var entry otpEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, nil, fmt.Errorf("decode otp: %w", err)
	}
	return b, &entry, nil
}
