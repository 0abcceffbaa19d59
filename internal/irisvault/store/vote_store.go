package store

import (
	"context"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

type VoteStore interface {
	// InsertVote fails with vaulterr.DuplicateVote when the person already
	// voted in the election.
	InsertVote(ctx context.Context, v types.VotingRecord) (int64, error)
	GetVote(ctx context.Context, electionID string, personID types.PersonID) (types.VotingRecord, error)
	HasVoted(ctx context.Context, electionID string, personID types.PersonID) (bool, error)
	CountByChoice(ctx context.Context, electionID string) (map[string]int, error)
}
