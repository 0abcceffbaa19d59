package types

import (
	"strings"
	"time"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

const (
	VerifyIris     = "iris"
	VerifyOperator = "operator"
)

func ParseVerificationMethod(s string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(s)); m {
	case VerifyIris, VerifyOperator:
		return m, nil
	}
	return "", vaulterr.Newf(vaulterr.Invalid, "types.ParseVerificationMethod", "unknown verification method %q", s)
}

type VotingRecord struct {
	ID                 int64
	ElectionID         string
	PersonID           PersonID
	ChoiceID           string
	VoteHash           string
	VerificationMethod string
	CastAt             time.Time
}

// NewVotingRecord refuses to build a record without its receipt hash.
func NewVotingRecord(electionID string, personID PersonID, choiceID, voteHash, method string, castAt time.Time) (VotingRecord, error) {
	const op = "types.NewVotingRecord"
	electionID = strings.TrimSpace(electionID)
	choiceID = strings.TrimSpace(choiceID)
	switch {
	case electionID == "":
		return VotingRecord{}, vaulterr.Newf(vaulterr.Invalid, op, "election id is required")
	case personID <= 0:
		return VotingRecord{}, vaulterr.Newf(vaulterr.Invalid, op, "person id is required")
	case choiceID == "":
		return VotingRecord{}, vaulterr.Newf(vaulterr.Invalid, op, "choice id is required")
	case len(voteHash) != 64:
		return VotingRecord{}, vaulterr.Newf(vaulterr.Invalid, op, "vote hash must be 64 hex chars")
	}
	m, err := ParseVerificationMethod(method)
	if err != nil {
		return VotingRecord{}, err
	}
	return VotingRecord{
		ElectionID:         electionID,
		PersonID:           personID,
		ChoiceID:           choiceID,
		VoteHash:           voteHash,
		VerificationMethod: m,
		CastAt:             castAt.UTC(),
	}, nil
}

// VoteReceipt is handed to the voter. Nonce is the only copy; it is never
// stored, so VoteHash cannot be linked back to the choice without it.
type VoteReceipt struct {
	ElectionID string    `json:"election_id"`
	VoteHash   string    `json:"vote_hash"`
	Nonce      string    `json:"nonce"`
	CastAt     time.Time `json:"cast_at"`
	AuditSeq   int64     `json:"audit_seq"`
}

type Tally struct {
	ElectionID string         `json:"election_id"`
	Counts     map[string]int `json:"counts"`
	Total      int            `json:"total"`
}
