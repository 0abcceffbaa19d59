package types

import (
	"strings"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

type PersonID int64

// PersonAttributes describe a person at enrollment. A zero ID enrolls a new
// person; a non-zero ID attaches a template to an existing one.
type PersonAttributes struct {
	ID    PersonID `json:"id,omitempty"`
	Name  string   `json:"name"`
	Email string   `json:"email,omitempty"`
	Phone string   `json:"phone,omitempty"`
}

type Person struct {
	ID            PersonID   `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Active        bool       `json:"active"`
	EnrolledAt    time.Time  `json:"enrolled_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	LastAccessAt  *time.Time `json:"last_access_at,omitempty"`
}

type Eye string

const (
	EyeLeft  Eye = "left"
	EyeRight Eye = "right"
)

func ParseEye(s string) (Eye, error) {
	switch e := Eye(strings.ToLower(strings.TrimSpace(s))); e {
	case EyeLeft, EyeRight:
		return e, nil
	}
	return "", vaulterr.Newf(vaulterr.Invalid, "types.ParseEye", "unknown eye tag %q", s)
}

// Template is an enrolled biometric feature blob. Templates are immutable;
// re-enrollment writes a new one.
type Template struct {
	ID             int64     `json:"id"`
	PersonID       PersonID  `json:"person_id"`
	Blob           []byte    `json:"-"`
	Quality        float64   `json:"quality"`
	Eye            Eye       `json:"eye"`
	ModelVersionID *int64    `json:"model_version_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewTemplate(personID PersonID, blob []byte, quality float64, eye Eye, modelVersionID *int64, createdAt time.Time) (Template, error) {
	const op = "types.NewTemplate"
	if len(blob) == 0 {
		return Template{}, vaulterr.Newf(vaulterr.Invalid, op, "template blob is empty")
	}
	if quality < 0 || quality > 1 {
		return Template{}, vaulterr.Newf(vaulterr.Invalid, op, "quality %v outside [0,1]", quality)
	}
	if _, err := ParseEye(string(eye)); err != nil {
		return Template{}, err
	}
	b := make([]byte, len(blob))
	copy(b, blob)
	return Template{
		PersonID:       personID,
		Blob:           b,
		Quality:        quality,
		Eye:            eye,
		ModelVersionID: modelVersionID,
		CreatedAt:      createdAt.UTC(),
	}, nil
}
