package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harentsoar/clinic-api/internal/models"
)

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *accountRepoPG) CreateAccount(ctx context.Context, acct *models.Account) error {
	if err := acct.Validate(); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	acct.User.Email = normalizeEmail(acct.User.Email)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, role)
			VALUES ($1, $2, $3)
			RETURNING id, registered_at`,
			acct.User.Email, acct.User.PasswordHash, acct.User.Role,
		).Scan(&acct.User.ID, &acct.User.RegisteredAt)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		switch {
		case acct.Patient != nil:
			return insertPatient(ctx, tx, acct.User.ID, acct.Patient)
		case acct.Doctor != nil:
			return insertDoctor(ctx, tx, acct.User.ID, acct.Doctor)
		default:
			return insertAdmin(ctx, tx, acct.User.ID, acct.Admin)
		}
	})
	if err != nil {
		acct.User.ID = 0
		return translate(err)
	}
	return nil
}

func insertPatient(ctx context.Context, q querier, id int64, p *models.PatientProfile) error {
	p.UserID = id
	_, err := q.Exec(ctx, `
		INSERT INTO patient_profiles (
			user_id, first_name, last_name, phone, street, city, state, postal_code,
			allergies, medical_history, photo, photo_mime
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		id, p.FirstName, p.LastName, p.Phone,
		p.Address.Street, p.Address.City, p.Address.State, p.Address.PostalCode,
		p.Allergies, p.MedicalHistory, p.Photo.Data, p.Photo.MimeType,
	)
	if err != nil {
		return fmt.Errorf("insert patient profile: %w", err)
	}
	return nil
}

func insertDoctor(ctx context.Context, q querier, id int64, d *models.DoctorProfile) error {
	d.UserID = id
	_, err := q.Exec(ctx, `
		INSERT INTO doctor_profiles (
			user_id, first_name, last_name, phone, specialty, license_number, photo, photo_mime
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		id, d.FirstName, d.LastName, d.Phone, d.Specialty, d.LicenseNumber, d.Photo.Data, d.Photo.MimeType,
	)
	if err != nil {
		return fmt.Errorf("insert doctor profile: %w", err)
	}
	for i, e := range d.Schedule {
		var date *string
		if e.Date != "" {
			date = &e.Date
		}
		status := e.Status
		if status == "" {
			status = models.ScheduleAvailable
		}
		_, err := q.Exec(ctx, `
			INSERT INTO doctor_schedule_entries (doctor_id, weekday, day, start_time, end_time, status)
			VALUES ($1, $2::smallint, $3::text::date, $4::text::time, $5::text::time, $6)`,
			id, e.Weekday, date, e.StartTime, e.EndTime, status,
		)
		if err != nil {
			return fmt.Errorf("insert schedule entry %d: %w", i, err)
		}
	}
	return nil
}

func insertAdmin(ctx context.Context, q querier, id int64, a *models.AdminProfile) error {
	a.UserID = id
	_, err := q.Exec(ctx, `
		INSERT INTO admin_profiles (user_id, first_name, last_name, phone)
		VALUES ($1,$2,$3,$4)`,
		id, a.FirstName, a.LastName, a.Phone,
	)
	if err != nil {
		return fmt.Errorf("insert admin profile: %w", err)
	}
	return nil
}

const userCols = `id, email, password_hash, role, registered_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.RegisteredAt); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *accountRepoPG) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = $1`, normalizeEmail(email)))
}

func (r *accountRepoPG) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *accountRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1)`, normalizeEmail(email),
	).Scan(&exists)
	return exists, translate(err)
}

func (r *accountRepoPG) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	u, err := r.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	acct := &models.Account{User: *u}

	switch u.Role {
	case models.RolePatient:
		p := &models.PatientProfile{UserID: id}
		err = r.pool.QueryRow(ctx, `
			SELECT first_name, last_name, phone, street, city, state, postal_code,
			       allergies, medical_history, photo, photo_mime
			FROM patient_profiles WHERE user_id = $1`, id,
		).Scan(&p.FirstName, &p.LastName, &p.Phone,
			&p.Address.Street, &p.Address.City, &p.Address.State, &p.Address.PostalCode,
			&p.Allergies, &p.MedicalHistory, &p.Photo.Data, &p.Photo.MimeType)
		acct.Patient = p
	case models.RoleDoctor:
		var d *models.DoctorProfile
		d, err = r.getDoctor(ctx, id)
		acct.Doctor = d
	case models.RoleAdmin:
		a := &models.AdminProfile{UserID: id}
		err = r.pool.QueryRow(ctx,
			`SELECT first_name, last_name, phone FROM admin_profiles WHERE user_id = $1`, id,
		).Scan(&a.FirstName, &a.LastName, &a.Phone)
		acct.Admin = a
	}
	if err != nil {
		return nil, fmt.Errorf("load %s profile: %w", u.Role, translate(err))
	}
	return acct, nil
}

const doctorCols = `user_id, first_name, last_name, phone, specialty, license_number, photo_mime`

func scanDoctor(row pgx.Row) (*models.DoctorProfile, error) {
	var d models.DoctorProfile
	err := row.Scan(&d.UserID, &d.FirstName, &d.LastName, &d.Phone, &d.Specialty, &d.LicenseNumber, &d.Photo.MimeType)
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *accountRepoPG) getDoctor(ctx context.Context, id int64) (*models.DoctorProfile, error) {
	d, err := scanDoctor(r.pool.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor_profiles WHERE user_id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSchedules(ctx, []*models.DoctorProfile{d}); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *accountRepoPG) loadSchedules(ctx context.Context, doctors []*models.DoctorProfile) error {
	if len(doctors) == 0 {
		return nil
	}
	byID := make(map[int64]*models.DoctorProfile, len(doctors))
	ids := make([]int64, 0, len(doctors))
	for _, d := range doctors {
		d.Schedule = []models.ScheduleEntry{}
		byID[d.UserID] = d
		ids = append(ids, d.UserID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, weekday, COALESCE(to_char(day, 'YYYY-MM-DD'), ''),
		       to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), status
		FROM doctor_schedule_entries
		WHERE doctor_id = ANY($1)
		ORDER BY doctor_id, weekday NULLS LAST, day NULLS LAST, start_time`, ids)
	if err != nil {
		return fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			doctorID int64
			weekday  *int16
			e        models.ScheduleEntry
		)
		if err := rows.Scan(&doctorID, &weekday, &e.Date, &e.StartTime, &e.EndTime, &e.Status); err != nil {
			return fmt.Errorf("scan schedule: %w", err)
		}
		if weekday != nil {
			w := int(*weekday)
			e.Weekday = &w
		}
		if d, ok := byID[doctorID]; ok {
			d.Schedule = append(d.Schedule, e)
		}
	}
	return rows.Err()
}

func (r *accountRepoPG) UpdateContact(ctx context.Context, id int64, upd ContactUpdate) error {
	u, err := r.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	sets := []string{}
	args := []interface{}{id}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}

	var table string
	switch u.Role {
	case models.RolePatient:
		table = "patient_profiles"
		if upd.Address != nil {
			add("street", upd.Address.Street)
			add("city", upd.Address.City)
			add("state", upd.Address.State)
			add("postal_code", upd.Address.PostalCode)
		}
	case models.RoleDoctor:
		table = "doctor_profiles"
	default:
		table = "admin_profiles"
	}
	if len(sets) == 0 {
		return nil
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE user_id = $1`, args...)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) ListDoctors(ctx context.Context, specialty string) ([]*models.DoctorProfile, error) {
	query := `SELECT ` + doctorCols + ` FROM doctor_profiles`
	args := []interface{}{}
	if specialty != "" {
		query += ` WHERE lower(specialty) = lower($1)`
		args = append(args, specialty)
	}
	query += ` ORDER BY last_name, first_name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	defer rows.Close()

	doctors := []*models.DoctorProfile{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadSchedules(ctx, doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}
