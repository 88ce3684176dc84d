package handlers

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/repository"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts []*models.Account
}

func (r *memAccounts) CreateAccount(ctx context.Context, acct *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct.User.Email = strings.ToLower(acct.User.Email)
	for _, a := range r.accounts {
		if a.User.Email == acct.User.Email {
			return repository.ErrDuplicateEmail
		}
	}
	acct.User.ID = int64(len(r.accounts) + 1)
	acct.User.RegisteredAt = time.Now()
	switch {
	case acct.Patient != nil:
		acct.Patient.UserID = acct.User.ID
	case acct.Doctor != nil:
		acct.Doctor.UserID = acct.User.ID
	case acct.Admin != nil:
		acct.Admin.UserID = acct.User.ID
	}
	r.accounts = append(r.accounts, acct)
	return nil
}

func (r *memAccounts) get(match func(*models.Account) bool) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if match(a) {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memAccounts) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	a, err := r.get(func(a *models.Account) bool { return a.User.Email == strings.ToLower(email) })
	if err != nil {
		return nil, err
	}
	return &a.User, nil
}

func (r *memAccounts) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	a, err := r.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &a.User, nil
}

func (r *memAccounts) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (r *memAccounts) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return r.get(func(a *models.Account) bool { return a.User.ID == id })
}

func (r *memAccounts) UpdateContact(ctx context.Context, id int64, upd repository.ContactUpdate) error {
	a, err := r.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Patient != nil {
		if upd.FirstName != nil {
			a.Patient.FirstName = *upd.FirstName
		}
		if upd.Phone != nil {
			a.Patient.Phone = *upd.Phone
		}
		if upd.Address != nil {
			a.Patient.Address = *upd.Address
		}
	}
	return nil
}

func (r *memAccounts) ListDoctors(ctx context.Context, specialty string) ([]*models.DoctorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DoctorProfile
	for _, a := range r.accounts {
		if a.Doctor != nil && (specialty == "" || strings.EqualFold(a.Doctor.Specialty, specialty)) {
			out = append(out, a.Doctor)
		}
	}
	return out, nil
}

type memAppointments struct {
	mu    sync.Mutex
	items []*models.Appointment
}

func (r *memAppointments) Create(ctx context.Context, apt *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	apt.ID = int64(len(r.items) + 1)
	cp := *apt
	r.items = append(r.items, &cp)
	return nil
}

func (r *memAppointments) GetByID(ctx context.Context, id int64) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memAppointments) List(ctx context.Context, f models.AppointmentFilter) ([]*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Appointment{}
	for _, a := range r.items {
		if f.PatientID != 0 && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorID != 0 && a.DoctorID != f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memAppointments) Update(ctx context.Context, apt *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.items {
		if a.ID == apt.ID {
			cp := *apt
			r.items[i] = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memAppointments) SetStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.items {
		if a.ID == id {
			a.Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

var codePattern = regexp.MustCompile(`\b[0-9]{6}\b`)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	if code := codePattern.FindString(body); code != "" {
		m.codes[to] = code
	}
	return nil
}

func (m *captureMailer) Code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}
