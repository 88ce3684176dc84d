package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harentsoar/clinic-api/internal/models"
)

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const appointmentSelect = `
	SELECT a.id, a.patient_id, p.first_name || ' ' || p.last_name,
	       a.doctor_id, d.first_name || ' ' || d.last_name,
	       a.start_time, a.end_time, a.service, a.status
	FROM appointments a
	JOIN patient_profiles p ON p.user_id = a.patient_id
	JOIN doctor_profiles d ON d.user_id = a.doctor_id`

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.DoctorID, &a.DoctorName,
		&a.StartTime, &a.EndTime, &a.Service, &a.Status)
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, apt *models.Appointment) error {
	if apt.Status == "" {
		apt.Status = models.AppointmentScheduled
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, start_time, end_time, service, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		apt.PatientID, apt.DoctorID, apt.StartTime, apt.EndTime, apt.Service, apt.Status,
	).Scan(&apt.ID)
	return translate(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*models.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f models.AppointmentFilter) ([]*models.Appointment, error) {
	where := []string{}
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != 0 {
		add("a.patient_id = $%d", f.PatientID)
	}
	if f.DoctorID != 0 {
		add("a.doctor_id = $%d", f.DoctorID)
	}
	if !f.From.IsZero() {
		add("a.start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.start_time <= $%d", f.To)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}

	query := appointmentSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Newest {
		query += " ORDER BY a.start_time DESC"
	} else {
		query += " ORDER BY a.start_time ASC"
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	appointments := []*models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

func (r *appointmentRepoPG) Update(ctx context.Context, apt *models.Appointment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET start_time = $2, end_time = $3, service = $4, status = $5
		WHERE id = $1`,
		apt.ID, apt.StartTime, apt.EndTime, apt.Service, apt.Status,
	)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
