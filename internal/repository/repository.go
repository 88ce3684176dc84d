// Package repository is the relational store for accounts and
// appointments. All statements are parameterized; multi-row writes run in
// one transaction.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/harentsoar/clinic-api/internal/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicateLicense = errors.New("license number already registered")
)

// ContactUpdate carries the profile fields a user may change about
// themselves. Nil fields are left untouched.
type ContactUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *models.Address
}

type AccountRepository interface {
	// CreateAccount writes the user row and its role profile atomically and
	// fills in the generated ids.
	CreateAccount(ctx context.Context, acct *models.Account) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	UpdateContact(ctx context.Context, id int64, upd ContactUpdate) error
	ListDoctors(ctx context.Context, specialty string) ([]*models.DoctorProfile, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, apt *models.Appointment) error
	GetByID(ctx context.Context, id int64) (*models.Appointment, error)
	List(ctx context.Context, f models.AppointmentFilter) ([]*models.Appointment, error)
	Update(ctx context.Context, apt *models.Appointment) error
	SetStatus(ctx context.Context, id int64, status string) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const uniqueViolation = "23505"

// translate maps driver errors onto the package's sentinel errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "doctor_profiles_license_number_key":
			return ErrDuplicateLicense
		default:
			return ErrDuplicateEmail
		}
	}
	return err
}
