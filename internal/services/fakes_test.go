package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/harentsoar/clinic-api/internal/kvstore"
	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/repository"
	"github.com/harentsoar/clinic-api/internal/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	block bool
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// fakeAccounts is an in-memory AccountRepository. ids start at 1.
type fakeAccounts struct {
	mu        sync.Mutex
	accounts  []*models.Account
	creates   int
	createErr error
	block     bool
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func (r *fakeAccounts) CreateAccount(ctx context.Context, acct *models.Account) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
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

func (r *fakeAccounts) find(match func(*models.Account) bool) *models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if match(a) {
			return a
		}
	}
	return nil
}

func (r *fakeAccounts) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	a := r.find(func(a *models.Account) bool { return a.User.Email == strings.ToLower(email) })
	if a == nil {
		return nil, repository.ErrNotFound
	}
	u := a.User
	return &u, nil
}

func (r *fakeAccounts) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	a := r.find(func(a *models.Account) bool { return a.User.ID == id })
	if a == nil {
		return nil, repository.ErrNotFound
	}
	u := a.User
	return &u, nil
}

func (r *fakeAccounts) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.find(func(a *models.Account) bool { return a.User.Email == strings.ToLower(email) }) != nil, nil
}

func (r *fakeAccounts) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	a := r.find(func(a *models.Account) bool { return a.User.ID == id })
	if a == nil {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (r *fakeAccounts) UpdateContact(ctx context.Context, id int64, upd repository.ContactUpdate) error {
	return nil
}

func (r *fakeAccounts) ListDoctors(ctx context.Context, specialty string) ([]*models.DoctorProfile, error) {
	return nil, nil
}

func (r *fakeAccounts) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

type testEnv struct {
	clock    *fakeClock
	store    *kvstore.MemoryStore
	mailer   *fakeMailer
	accounts *fakeAccounts
	otp      *OTPService
	stager   *Stager
	reg      *RegistrationService
	codes    []string
}

// newTestEnv wires the registration flow over in-memory fakes. Codes are
// handed out from env.codes in order, defaulting to 123456.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	utils.PasswordCost = bcrypt.MinCost

	env := &testEnv{
		clock:    newFakeClock(),
		mailer:   &fakeMailer{},
		accounts: &fakeAccounts{},
	}
	env.store = kvstore.NewMemoryStoreWithClock(env.clock.Now)
	env.otp = NewOTPService(env.store, env.mailer, OTPConfig{
		TTL:         5 * time.Minute,
		MaxAttempts: 5,
		MailTimeout: 50 * time.Millisecond,
	}, zerolog.Nop())
	env.otp.now = env.clock.Now
	env.otp.generate = func() (string, error) {
		if len(env.codes) == 0 {
			return "123456", nil
		}
		code := env.codes[0]
		env.codes = env.codes[1:]
		return code, nil
	}
	env.stager = NewStager(env.store, 30*time.Minute)
	env.reg = NewRegistrationService(env.accounts, env.otp, env.stager, 50*time.Millisecond, zerolog.Nop())
	env.reg.now = env.clock.Now
	return env
}

func patientForm(email string) RegistrationForm {
	return RegistrationForm{
		Email:           email,
		Password:        "correct-horse",
		ConfirmPassword: "correct-horse",
		FirstName:       "Ana",
		LastName:        "Rakoto",
		Phone:           "+261340000000",
		Address:         models.Address{Street: "1 Main St", City: "Antananarivo", PostalCode: "101"},
		Allergies:       "penicillin",
	}
}
