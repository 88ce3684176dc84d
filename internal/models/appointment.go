package models

import "time"

const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

type Appointment struct {
	ID          int64     `json:"id"`
	PatientID   int64     `json:"patientId"`
	PatientName string    `json:"patientName"`
	DoctorID    int64     `json:"doctorId"`
	DoctorName  string    `json:"doctorName"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Service     string    `json:"service"`
	Status      string    `json:"status"`
}

// ValidAppointmentStatus reports whether status is a known appointment status.
func ValidAppointmentStatus(status string) bool {
	switch status {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// AppointmentFilter narrows appointment listings. Zero values mean "any".
type AppointmentFilter struct {
	PatientID int64
	DoctorID  int64
	From      time.Time
	To        time.Time
	Status    string
	Newest    bool
}
