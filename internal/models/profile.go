package models

import (
	"errors"
	"fmt"
	"time"
)

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

type Photo struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType,omitempty"`
}

// PatientProfile shares its id with the owning User.
type PatientProfile struct {
	UserID         int64   `json:"userId"`
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	Phone          string  `json:"phone"`
	Address        Address `json:"address"`
	Allergies      string  `json:"allergies"`
	MedicalHistory string  `json:"medicalHistory"`
	Photo          Photo   `json:"photo"`
}

type DoctorProfile struct {
	UserID        int64           `json:"userId"`
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	Phone         string          `json:"phone"`
	Specialty     string          `json:"specialty"`
	LicenseNumber string          `json:"licenseNumber"`
	Photo         Photo           `json:"photo"`
	Schedule      []ScheduleEntry `json:"schedule"`
}

type AdminProfile struct {
	UserID    int64  `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

const (
	ScheduleAvailable   = "available"
	ScheduleUnavailable = "unavailable"

	ClockLayout = "15:04"
	DateLayout  = "2006-01-02"
)

// ScheduleEntry is one block of a doctor's week: either a recurring
// weekday (0 = Sunday) or a specific date, with a start and end clock time.
type ScheduleEntry struct {
	Weekday   *int   `json:"weekday,omitempty"`
	Date      string `json:"date,omitempty"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Status    string `json:"status"`
}

func (e ScheduleEntry) Validate() error {
	if e.Weekday == nil && e.Date == "" {
		return errors.New("schedule entry needs a weekday or a date")
	}
	if e.Weekday != nil && (*e.Weekday < 0 || *e.Weekday > 6) {
		return fmt.Errorf("weekday %d out of range 0-6", *e.Weekday)
	}
	if e.Date != "" {
		if _, err := time.Parse(DateLayout, e.Date); err != nil {
			return fmt.Errorf("date %q is not YYYY-MM-DD", e.Date)
		}
	}
	if e.StartTime == "" || e.EndTime == "" {
		return errors.New("schedule entry needs both start and end time")
	}
	start, err := time.Parse(ClockLayout, e.StartTime)
	if err != nil {
		return fmt.Errorf("start time %q is not HH:MM", e.StartTime)
	}
	end, err := time.Parse(ClockLayout, e.EndTime)
	if err != nil {
		return fmt.Errorf("end time %q is not HH:MM", e.EndTime)
	}
	if !start.Before(end) {
		return fmt.Errorf("start time %s must be before end time %s", e.StartTime, e.EndTime)
	}
	switch e.Status {
	case "", ScheduleAvailable, ScheduleUnavailable:
	default:
		return fmt.Errorf("unknown schedule status %q", e.Status)
	}
	return nil
}

// Account is a User together with exactly one role profile. It is the unit
// the credential store writes atomically.
type Account struct {
	User    User            `json:"user"`
	Patient *PatientProfile `json:"patient,omitempty"`
	Doctor  *DoctorProfile  `json:"doctor,omitempty"`
	Admin   *AdminProfile   `json:"admin,omitempty"`
}

// Validate checks that the account carries the profile matching its role
// and no other.
func (a *Account) Validate() error {
	profiles := 0
	for _, set := range []bool{a.Patient != nil, a.Doctor != nil, a.Admin != nil} {
		if set {
			profiles++
		}
	}
	if profiles != 1 {
		return fmt.Errorf("account must carry exactly one role profile, got %d", profiles)
	}
	switch a.User.Role {
	case RolePatient:
		if a.Patient == nil {
			return errors.New("patient account without patient profile")
		}
	case RoleDoctor:
		if a.Doctor == nil {
			return errors.New("doctor account without doctor profile")
		}
		for i, e := range a.Doctor.Schedule {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("schedule[%d]: %w", i, err)
			}
		}
	case RoleAdmin:
		if a.Admin == nil {
			return errors.New("admin account without admin profile")
		}
	default:
		return fmt.Errorf("unknown role %q", a.User.Role)
	}
	return nil
}

// DisplayName returns the profile's "First Last".
func (a *Account) DisplayName() string {
	switch {
	case a.Patient != nil:
		return a.Patient.FirstName + " " + a.Patient.LastName
	case a.Doctor != nil:
		return a.Doctor.FirstName + " " + a.Doctor.LastName
	case a.Admin != nil:
		return a.Admin.FirstName + " " + a.Admin.LastName
	}
	return a.User.Email
}

// Phone returns the profile's phone number, if any.
func (a *Account) Phone() string {
	switch {
	case a.Patient != nil:
		return a.Patient.Phone
	case a.Doctor != nil:
		return a.Doctor.Phone
	case a.Admin != nil:
		return a.Admin.Phone
	}
	return ""
}
