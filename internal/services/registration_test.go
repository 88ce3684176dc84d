package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/utils"
)

var pngPhoto = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func TestRegistration_Scenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form := patientForm("a@x.com")
	form.Photo = pngPhoto
	require.NoError(t, env.reg.Submit(ctx, "sess-1", form))

	staged, err := env.stager.Retrieve(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationOtpSent, staged.State)
	assert.Equal(t, "image/png", staged.PhotoMimeType)

	env.clock.Advance(100 * time.Second)
	_, err = env.otp.Verify(ctx, "sess-1", "a@x.com", "123456")
	require.NoError(t, err)

	acct, err := env.reg.Finalize(ctx, "sess-1", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.User.ID)
	assert.Equal(t, models.RolePatient, acct.User.Role)
	require.NotNil(t, acct.Patient)
	assert.Equal(t, int64(1), acct.Patient.UserID)
	assert.Equal(t, "Antananarivo", acct.Patient.Address.City)
	assert.Equal(t, 1, env.accounts.Count())

	_, err = env.otp.Verify(ctx, "sess-1", "a@x.com", "123456")
	assert.ErrorIs(t, err, ErrOtpNotFound)

	_, err = env.stager.Retrieve(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrStaleRegistration)
}

func TestRegistration_StagesHashNotPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))

	staged, err := env.stager.Retrieve(ctx, "sess-1")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", staged.PasswordHash)
	assert.True(t, utils.CheckPasswordHash("correct-horse", staged.PasswordHash))
}

func TestRegistration_FinalizeTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))
	_, err := env.otp.Verify(ctx, "sess-1", "a@x.com", "123456")
	require.NoError(t, err)

	_, err = env.reg.Finalize(ctx, "sess-1", "a@x.com")
	require.NoError(t, err)

	_, err = env.reg.Finalize(ctx, "sess-1", "a@x.com")
	assert.ErrorIs(t, err, ErrStaleRegistration)
	assert.Equal(t, 1, env.accounts.creates)
}

func TestRegistration_FinalizeWithoutStage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reg.Finalize(context.Background(), "sess-1", "a@x.com")
	assert.ErrorIs(t, err, ErrStaleRegistration)
	assert.Equal(t, 0, env.accounts.creates)
}

func TestRegistration_FinalizeAfterStageExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))
	_, err := env.otp.Verify(ctx, "sess-1", "a@x.com", "123456")
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)
	_, err = env.reg.Finalize(ctx, "sess-1", "a@x.com")
	assert.ErrorIs(t, err, ErrStaleRegistration)
	assert.Equal(t, 0, env.accounts.creates)
}

func TestRegistration_FinalizeRequiresVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))

	_, err := env.reg.Finalize(ctx, "sess-1", "a@x.com")
	assert.ErrorIs(t, err, ErrOtpNotVerified)
	assert.Equal(t, 0, env.accounts.creates)

	_, err = env.stager.Retrieve(ctx, "sess-1")
	require.NoError(t, err, "unverified finalize keeps the stage")

	_, err = env.otp.Verify(ctx, "sess-1", "a@x.com", "123456")
	require.NoError(t, err)
	_, err = env.reg.Finalize(ctx, "sess-1", "a@x.com")
	assert.NoError(t, err)
}

func TestRegistration_FinalizeForeignEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))

	_, err := env.reg.Finalize(ctx, "sess-1", "b@x.com")
	assert.ErrorIs(t, err, ErrStaleRegistration)
	assert.Equal(t, 0, env.accounts.creates)
}

func TestRegistration_SubmitValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RegistrationForm)
		wantErr error
		field   string
	}{
		{"password mismatch", func(f *RegistrationForm) { f.ConfirmPassword = "other-pass" }, ErrPasswordMismatch, ""},
		{"missing email", func(f *RegistrationForm) { f.Email = "" }, nil, "email"},
		{"bad email", func(f *RegistrationForm) { f.Email = "not-an-email" }, nil, "email"},
		{"short password", func(f *RegistrationForm) { f.Password, f.ConfirmPassword = "abc", "abc" }, nil, "password"},
		{"overlong password", func(f *RegistrationForm) {
			f.Password = strings.Repeat("p", utils.MaxPasswordBytes+1)
			f.ConfirmPassword = f.Password
		}, nil, "password"},
		{"missing first name", func(f *RegistrationForm) { f.FirstName = " " }, nil, "firstName"},
		{"doctor self-registration", func(f *RegistrationForm) { f.Role = models.RoleDoctor }, nil, "role"},
		{"photo not an image", func(f *RegistrationForm) { f.Photo = []byte("just some text") }, nil, "foto"},
		{"photo too large", func(f *RegistrationForm) {
			f.Photo = append(append([]byte{}, pngPhoto...), make([]byte, MaxPhotoSize)...)
		}, nil, "foto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			form := patientForm("a@x.com")
			tt.mutate(&form)

			err := env.reg.Submit(context.Background(), "sess-1", form)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.field, verr.Field)
			}
			assert.Empty(t, env.mailer.Sent())
			assert.Equal(t, 0, env.store.Len())
		})
	}
}

func TestRegistration_SubmitEmailTaken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reg.RegisterDirect(ctx, RegistrationForm{
		Role: models.RoleAdmin, Email: "a@x.com", Password: "admin-pass", ConfirmPassword: "admin-pass",
		FirstName: "Root", LastName: "Admin",
	})
	require.NoError(t, err)

	err = env.reg.Submit(ctx, "sess-1", patientForm("A@X.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegistration_SubmitDispatchFailureLeavesDraft(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("relay down")
	ctx := context.Background()

	err := env.reg.Submit(ctx, "sess-1", patientForm("a@x.com"))
	assert.ErrorIs(t, err, ErrOtpDispatchFailed)

	staged, err := env.stager.Retrieve(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationDraft, staged.State)

	env.mailer.err = nil
	require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))
	staged, err = env.stager.Retrieve(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationOtpSent, staged.State)
}

func TestRegistration_PersistenceFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeAccounts)
		wantErr error
	}{
		{"timeout", func(r *fakeAccounts) { r.block = true }, ErrPersistenceTimeout},
		{"driver error", func(r *fakeAccounts) { r.createErr = errors.New("connection reset") }, ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))
			_, err := env.otp.Verify(ctx, "sess-1", "a@x.com", "123456")
			require.NoError(t, err)

			tt.setup(env.accounts)
			_, err = env.reg.Finalize(ctx, "sess-1", "a@x.com")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, env.accounts.Count())

			_, err = env.stager.Retrieve(ctx, "sess-1")
			assert.ErrorIs(t, err, ErrStaleRegistration, "stage is cleared after a failed write")
		})
	}
}

func TestRegistration_RegisterDirectDoctor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	monday := 1

	form := RegistrationForm{
		Role: models.RoleDoctor, Email: "doc@x.com", Password: "doctor-pass", ConfirmPassword: "doctor-pass",
		FirstName: "Jean", LastName: "Doe", Specialty: "Dentistry", LicenseNumber: "LIC-1",
		Schedule: []models.ScheduleEntry{{Weekday: &monday, StartTime: "09:00", EndTime: "12:00"}},
	}
	acct, err := env.reg.RegisterDirect(ctx, form)
	require.NoError(t, err)
	require.NotNil(t, acct.Doctor)
	assert.Equal(t, models.ScheduleAvailable, acct.Doctor.Schedule[0].Status)
	assert.Empty(t, env.mailer.Sent(), "direct registration sends no code")

	form.Email = "doc2@x.com"
	form.Schedule = []models.ScheduleEntry{{Weekday: &monday, StartTime: "12:00", EndTime: "09:00"}}
	_, err = env.reg.RegisterDirect(ctx, form)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	form.Schedule = nil
	form.LicenseNumber = ""
	_, err = env.reg.RegisterDirect(ctx, form)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "licenseNumber", verr.Field)
}

func TestRegistration_VerificationFromAnotherSessionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.codes = []string{"111111", "222222"}
	ctx := context.Background()

	intruder := patientForm("victim@x.com")
	intruder.Password, intruder.ConfirmPassword = "intruder-pass", "intruder-pass"
	require.NoError(t, env.reg.Submit(ctx, "sess-intruder", intruder))
	require.NoError(t, env.reg.Submit(ctx, "sess-victim", patientForm("victim@x.com")))

	_, err := env.otp.Verify(ctx, "sess-victim", "victim@x.com", "222222")
	require.NoError(t, err)

	_, err = env.reg.Finalize(ctx, "sess-intruder", "victim@x.com")
	assert.ErrorIs(t, err, ErrOtpNotVerified)
	assert.Equal(t, 0, env.accounts.creates)

	acct, err := env.reg.Finalize(ctx, "sess-victim", "victim@x.com")
	require.NoError(t, err)
	assert.True(t, utils.CheckPasswordHash("correct-horse", acct.User.PasswordHash))
	assert.False(t, utils.CheckPasswordHash("intruder-pass", acct.User.PasswordHash))
}

func TestRegistration_ConcurrentFinalizePersistsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.reg.Submit(ctx, "sess-1", patientForm("a@x.com")))
	_, err := env.otp.Verify(ctx, "sess-1", "a@x.com", "123456")
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.reg.Finalize(ctx, "sess-1", "a@x.com"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, env.accounts.creates)
}
