package api

import (
	"context"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/rbac"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

func (a *API) CastVote(ctx context.Context, token string, req CastVoteRequest) (_ types.VoteReceipt, err error) {
	claims, done, err := a.begin(ctx, "CastVote", token, rbac.CastVote)
	if err != nil {
		return types.VoteReceipt{}, err
	}
	defer func() { done(err) }()

	return a.vault.Voting.CastVote(ctx, claims.Username, req.ElectionID, req.PersonID, req.ChoiceID, req.Method)
}

// VerifyReceipt is run at the polling station on the voter's behalf, so it
// shares the casting capability.
func (a *API) VerifyReceipt(ctx context.Context, token string, req VerifyReceiptRequest) (_ bool, err error) {
	_, done, err := a.begin(ctx, "VerifyReceipt", token, rbac.CastVote)
	if err != nil {
		return false, err
	}
	defer func() { done(err) }()

	return a.vault.Voting.VerifyReceipt(ctx, req.Receipt, req.PersonID, req.ChoiceID)
}

func (a *API) HasVoted(ctx context.Context, token, electionID string, personID types.PersonID) (_ bool, err error) {
	_, done, err := a.begin(ctx, "HasVoted", token, rbac.CastVote)
	if err != nil {
		return false, err
	}
	defer func() { done(err) }()

	return a.vault.Voting.HasVoted(ctx, electionID, personID)
}

func (a *API) Tally(ctx context.Context, token, electionID string) (_ types.Tally, err error) {
	_, done, err := a.begin(ctx, "Tally", token, rbac.Tally)
	if err != nil {
		return types.Tally{}, err
	}
	defer func() { done(err) }()

	return a.vault.Voting.Tally(ctx, electionID)
}
