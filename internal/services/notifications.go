package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harentsoar/clinic-api/internal/models"
)

const defaultTextbeltURL = "https://textbelt.com/text"

// Recipient is who an appointment notice goes to.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// NotificationService tells patients about their appointments. SMS goes
// through Textbelt when a key is configured and the patient has a phone;
// otherwise the notice is mailed. Delivery runs in the background so it
// never holds up the API response.
type NotificationService struct {
	mailer      Mailer
	textbeltKey string
	textbeltURL string
	client      *http.Client
	timeout     time.Duration
	log         zerolog.Logger
	wg          sync.WaitGroup
}

func NewNotificationService(mailer Mailer, textbeltKey string, timeout time.Duration, log zerolog.Logger) *NotificationService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationService{
		mailer:      mailer,
		textbeltKey: textbeltKey,
		textbeltURL: defaultTextbeltURL,
		client:      &http.Client{Timeout: timeout},
		timeout:     timeout,
		log:         log.With().Str("component", "notifications").Logger(),
	}
}

func (s *NotificationService) AppointmentConfirmed(to Recipient, apt *models.Appointment) {
	msg := fmt.Sprintf("Appointment confirmed: %s with Dr. %s on %s.",
		apt.Service, apt.DoctorName, apt.StartTime.Format("Jan 2 at 3:04 PM"))
	s.dispatch(to, "Your appointment is confirmed", msg)
}

func (s *NotificationService) AppointmentCancelled(to Recipient, apt *models.Appointment) {
	msg := fmt.Sprintf("Appointment cancelled: %s with Dr. %s on %s.",
		apt.Service, apt.DoctorName, apt.StartTime.Format("Jan 2 at 3:04 PM"))
	s.dispatch(to, "Your appointment was cancelled", msg)
}

// Wait blocks until every notice queued so far has been attempted.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) dispatch(to Recipient, subject, msg string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if s.textbeltKey != "" && to.Phone != "" {
			err := s.sendSMS(ctx, to.Phone, msg)
			if err == nil {
				s.log.Info().Str("phone", to.Phone).Msg("sms sent")
				return
			}
			s.log.Warn().Err(err).Str("phone", to.Phone).Msg("sms failed, falling back to email")
		}
		if to.Email == "" {
			s.log.Warn().Str("recipient", to.Name).Msg("notice not sent: no phone or email")
			return
		}
		body := fmt.Sprintf("Hello %s,\n\n%s\n", to.Name, msg)
		if err := s.mailer.Send(ctx, to.Email, subject, body); err != nil {
			s.log.Error().Err(err).Str("email", to.Email).Msg("notice email failed")
			return
		}
		s.log.Info().Str("email", to.Email).Msg("notice emailed")
	}()
}

type textbeltResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *NotificationService) sendSMS(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": message,
		"key":     s.textbeltKey,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.textbeltURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("textbelt request: %w", err)
	}
	defer resp.Body.Close()

	var result textbeltResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("textbelt response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("textbelt: %s", result.Error)
	}
	return nil
}
