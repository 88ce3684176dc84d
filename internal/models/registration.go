package models

import "time"

const (
	RegistrationDraft   = "draft"
	RegistrationOtpSent = "otp_sent"
)

// PendingRegistration is a submitted but unconfirmed registration, held in
// the session stage until the OTP is verified. Only the password hash is
// kept; the plaintext never leaves the submit request.
type PendingRegistration struct {
	Role           string          `json:"role"`
	Email          string          `json:"email"`
	PasswordHash   string          `json:"passwordHash"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	Phone          string          `json:"phone"`
	Address        Address         `json:"address"`
	Allergies      string          `json:"allergies"`
	MedicalHistory string          `json:"medicalHistory"`
	Specialty      string          `json:"specialty,omitempty"`
	LicenseNumber  string          `json:"licenseNumber,omitempty"`
	Schedule       []ScheduleEntry `json:"schedule,omitempty"`
	Photo          []byte          `json:"photo,omitempty"`
	PhotoMimeType  string          `json:"photoMimeType,omitempty"`
	State          string          `json:"state"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Account builds the durable account this registration describes.
func (p *PendingRegistration) Account() *Account {
	acct := &Account{User: User{Email: p.Email, PasswordHash: p.PasswordHash, Role: p.Role}}
	photo := Photo{Data: p.Photo, MimeType: p.PhotoMimeType}
	switch p.Role {
	case RolePatient:
		acct.Patient = &PatientProfile{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			Phone:          p.Phone,
			Address:        p.Address,
			Allergies:      p.Allergies,
			MedicalHistory: p.MedicalHistory,
			Photo:          photo,
		}
	case RoleDoctor:
		acct.Doctor = &DoctorProfile{
			FirstName:     p.FirstName,
			LastName:      p.LastName,
			Phone:         p.Phone,
			Specialty:     p.Specialty,
			LicenseNumber: p.LicenseNumber,
			Photo:         photo,
			Schedule:      p.Schedule,
		}
	case RoleAdmin:
		acct.Admin = &AdminProfile{FirstName: p.FirstName, LastName: p.LastName, Phone: p.Phone}
	}
	return acct
}
