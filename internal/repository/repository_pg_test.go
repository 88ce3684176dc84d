package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harentsoar/clinic-api/internal/db"
	"github.com/harentsoar/clinic-api/internal/models"
)

// testPool connects to TEST_DATABASE_URL, applies migrations and empties
// the tables. Tests are skipped when no database is configured.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, db.Migrate(url, "up"))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 4, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE appointments, doctor_schedule_entries, doctor_profiles,
		patient_profiles, admin_profiles, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func intp(v int) *int { return &v }

func newPatient(email string) *models.Account {
	return &models.Account{
		User: models.User{Email: email, PasswordHash: "hash", Role: models.RolePatient},
		Patient: &models.PatientProfile{
			FirstName: "Ana", LastName: "Rakoto",
			Address:   models.Address{Street: "1 Main St", City: "Tana"},
			Allergies: "none",
			Photo:     models.Photo{Data: []byte{0x89, 0x50}, MimeType: "image/png"},
		},
	}
}

func newDoctor(email, license string) *models.Account {
	return &models.Account{
		User: models.User{Email: email, PasswordHash: "hash", Role: models.RoleDoctor},
		Doctor: &models.DoctorProfile{
			FirstName: "Jean", LastName: "Doe", Specialty: "Dentistry", LicenseNumber: license,
			Schedule: []models.ScheduleEntry{
				{Weekday: intp(1), StartTime: "09:00", EndTime: "12:00"},
				{Date: "2026-03-02", StartTime: "14:00", EndTime: "17:00", Status: models.ScheduleUnavailable},
			},
		},
	}
}

func TestAccountRepo_CreatePatient(t *testing.T) {
	pool := testPool(t)
	repo := NewAccountRepo(pool)
	ctx := context.Background()

	acct := newPatient("A@X.com")
	require.NoError(t, repo.CreateAccount(ctx, acct))
	assert.Equal(t, int64(1), acct.User.ID)
	assert.Equal(t, int64(1), acct.Patient.UserID)
	assert.Equal(t, "a@x.com", acct.User.Email)

	got, err := repo.GetAccount(ctx, acct.User.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Patient)
	assert.Equal(t, "Tana", got.Patient.Address.City)
	assert.Equal(t, []byte{0x89, 0x50}, got.Patient.Photo.Data)

	exists, err := repo.EmailExists(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	err = repo.CreateAccount(ctx, newPatient("a@x.com"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestAccountRepo_CreateDoctorIsAtomic(t *testing.T) {
	pool := testPool(t)
	repo := NewAccountRepo(pool)
	ctx := context.Background()

	require.NoError(t, repo.CreateAccount(ctx, newDoctor("doc1@x.com", "LIC-1")))

	err := repo.CreateAccount(ctx, newDoctor("doc2@x.com", "LIC-1"))
	assert.ErrorIs(t, err, ErrDuplicateLicense)

	exists, err := repo.EmailExists(ctx, "doc2@x.com")
	require.NoError(t, err)
	assert.False(t, exists, "user row must roll back with its profile")

	doctors, err := repo.ListDoctors(ctx, "dentistry")
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	require.Len(t, doctors[0].Schedule, 2)
	assert.Equal(t, 1, *doctors[0].Schedule[0].Weekday)
	assert.Equal(t, "2026-03-02", doctors[0].Schedule[1].Date)
	assert.Equal(t, models.ScheduleAvailable, doctors[0].Schedule[0].Status)
}

func TestAccountRepo_UpdateContact(t *testing.T) {
	pool := testPool(t)
	repo := NewAccountRepo(pool)
	ctx := context.Background()

	acct := newPatient("b@x.com")
	require.NoError(t, repo.CreateAccount(ctx, acct))

	name := "Anna"
	require.NoError(t, repo.UpdateContact(ctx, acct.User.ID, ContactUpdate{
		FirstName: &name,
		Address:   &models.Address{City: "Toamasina"},
	}))

	got, err := repo.GetAccount(ctx, acct.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.Patient.FirstName)
	assert.Equal(t, "Toamasina", got.Patient.Address.City)

	_, err = repo.GetAccount(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppointmentRepo(t *testing.T) {
	pool := testPool(t)
	accounts := NewAccountRepo(pool)
	repo := NewAppointmentRepo(pool)
	ctx := context.Background()

	patient := newPatient("p@x.com")
	doctor := newDoctor("d@x.com", "LIC-9")
	require.NoError(t, accounts.CreateAccount(ctx, patient))
	require.NoError(t, accounts.CreateAccount(ctx, doctor))

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	apt := &models.Appointment{
		PatientID: patient.User.ID, DoctorID: doctor.User.ID,
		StartTime: start, EndTime: start.Add(30 * time.Minute), Service: "Check-up",
	}
	require.NoError(t, repo.Create(ctx, apt))
	assert.NotZero(t, apt.ID)

	got, err := repo.GetByID(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Rakoto", got.PatientName)
	assert.Equal(t, "Jean Doe", got.DoctorName)
	assert.Equal(t, models.AppointmentScheduled, got.Status)

	list, err := repo.List(ctx, models.AppointmentFilter{PatientID: patient.User.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.SetStatus(ctx, apt.ID, models.AppointmentCancelled))
	list, err = repo.List(ctx, models.AppointmentFilter{Status: models.AppointmentScheduled})
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, repo.SetStatus(ctx, 12345, models.AppointmentCancelled), ErrNotFound)
}
