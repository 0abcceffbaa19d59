package types

import (
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

const (
	AttemptIris     = "iris"
	AttemptOverride = "override"
)

// Reasons recorded on access events.
const (
	ReasonThresholdMet   = "threshold_met"
	ReasonBelowThreshold = "below_threshold"
	ReasonUnknownPerson  = "unknown_person"
	ReasonPersonInactive = "person_inactive"
)

// MatchAttempt is what the recognition engine submits: a confidence for a
// candidate, never the templates themselves.
type MatchAttempt struct {
	Confidence  float64   `json:"confidence"`
	PersonID    *PersonID `json:"person_id,omitempty"`
	AttemptType string    `json:"attempt_type,omitempty"`
	Device      string    `json:"device,omitempty"`
	Location    string    `json:"location,omitempty"`
	ObservedAt  time.Time `json:"observed_at,omitempty"`
}

type AccessEvent struct {
	ID               int64     `json:"id"`
	PersonID         *PersonID `json:"person_id,omitempty"`
	AttemptType      string    `json:"attempt_type"`
	Confidence       float64   `json:"confidence"`
	Granted          bool      `json:"granted"`
	Reason           string    `json:"reason"`
	Threshold        *float64  `json:"threshold,omitempty"`
	ThresholdVersion *int      `json:"threshold_version,omitempty"`
	ModelVersionID   *int64    `json:"model_version_id,omitempty"`
	Device           string    `json:"device"`
	Location         string    `json:"location"`
	ObservedAt       time.Time `json:"observed_at"`
	RecordedAt       time.Time `json:"recorded_at"`
	OutOfOrder       bool      `json:"out_of_order"`
	OverrideOf       *int64    `json:"override_of,omitempty"`
}

// ValidateConfidence rejects scores outside [0,1].
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 || c != c {
		return vaulterr.Newf(vaulterr.Invalid, "types.ValidateConfidence", "confidence %v outside [0,1]", c)
	}
	return nil
}

// AccessQuery selects access events for forensic review. Zero bounds are open.
type AccessQuery struct {
	From     time.Time
	To       time.Time
	PersonID *PersonID
	Device   string
	Limit    int
}

// Decision is returned to the recognition engine for each attempt.
type Decision struct {
	Granted          bool      `json:"granted"`
	Reason           string    `json:"reason"`
	Confidence       float64   `json:"confidence"`
	Threshold        float64   `json:"threshold"`
	ThresholdVersion int       `json:"threshold_version"`
	PersonID         *PersonID `json:"person_id,omitempty"`
	AccessEventID    int64     `json:"access_event_id"`
	ModelVersionID   *int64    `json:"model_version_id,omitempty"`
	OutOfOrder       bool      `json:"out_of_order"`
	AuditSeq         int64     `json:"audit_seq,omitempty"`
}

// NewAccessEvent builds an event for an attempt, rejecting out-of-range
// confidence. Observed time defaults to recordedAt.
func NewAccessEvent(a MatchAttempt, granted bool, reason string, recordedAt time.Time) (AccessEvent, error) {
	if err := ValidateConfidence(a.Confidence); err != nil {
		return AccessEvent{}, err
	}
	kind := a.AttemptType
	if kind == "" {
		kind = AttemptIris
	}
	observed := a.ObservedAt
	if observed.IsZero() {
		observed = recordedAt
	}
	return AccessEvent{
		PersonID:    a.PersonID,
		AttemptType: kind,
		Confidence:  a.Confidence,
		Granted:     granted,
		Reason:      reason,
		Device:      a.Device,
		Location:    a.Location,
		ObservedAt:  observed.UTC(),
		RecordedAt:  recordedAt.UTC(),
	}, nil
}
