package patient

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinID     = 1
	MaxID     = 99999
	MBOLength = 9
)

const dateLayout = "2006-01-02"

var (
	validSex = map[string]bool{"M": true, "F": true}
	validEye = map[string]bool{"L": true, "R": true, "ND": true}
)

// Registration is the payload of a new patient. Dates are YYYY-MM-DD and
// optional.
type Registration struct {
	PatientID              int    `json:"patient_id"`
	Name                   string `json:"patient_name"`
	MBO                    string `json:"mbo"`
	DateOfBirth            string `json:"date_of_birth"`
	DateOfSampleCollection string `json:"date_of_sample_collection"`
	Sex                    string `json:"sex"`
	Eye                    string `json:"eye"`
}

// Identity is the sensitive record stored in patients_sensitive.
type Identity struct {
	PatientID   int
	Name        string
	MBO         string
	DateOfBirth *time.Time
	CollectedOn *time.Time
}

// Statistical is the pseudonymous record stored in patients_statistical.
type Statistical struct {
	PatientID  int    `json:"patient_id"`
	PersonHash string `json:"person_hash"`
	Age        *int   `json:"age"`
	Sex        string `json:"sex"`
	Eye        string `json:"eye"`
}

// ValidID reports whether id lies in the assignable range.
func ValidID(id int) bool { return id >= MinID && id <= MaxID }

func (r *Registration) identity() (*Identity, error) {
	if !ValidID(r.PatientID) {
		return nil, fmt.Errorf("%w: patient_id must be between %d and %d", ErrInvalid, MinID, MaxID)
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return nil, fmt.Errorf("%w: patient_name is required", ErrInvalid)
	}
	r.MBO = strings.TrimSpace(r.MBO)
	if len(r.MBO) != MBOLength {
		return nil, fmt.Errorf("%w: mbo must be %d characters", ErrInvalid, MBOLength)
	}
	if !validSex[r.Sex] {
		return nil, fmt.Errorf("%w: sex must be M or F", ErrInvalid)
	}
	if !validEye[r.Eye] {
		return nil, fmt.Errorf("%w: eye must be L, R or ND", ErrInvalid)
	}

	dob, err := parseOptionalDate("date_of_birth", r.DateOfBirth)
	if err != nil {
		return nil, err
	}
	collected, err := parseOptionalDate("date_of_sample_collection", r.DateOfSampleCollection)
	if err != nil {
		return nil, err
	}
	if dob != nil && collected != nil && collected.Before(*dob) {
		return nil, fmt.Errorf("%w: date_of_sample_collection precedes date_of_birth", ErrInvalid)
	}

	return &Identity{
		PatientID:   r.PatientID,
		Name:        r.Name,
		MBO:         r.MBO,
		DateOfBirth: dob,
		CollectedOn: collected,
	}, nil
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalid, field)
	}
	return &t, nil
}
