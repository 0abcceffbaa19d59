package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/chain"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

// VotingService records at most one vote per person per election. The
// stored choice feeds the tally; the vote hash, keyed by a nonce only the
// voter holds, lets the voter later prove what was recorded.
type VotingService struct {
	*env
	audit    *AuditLedger
	settings *SettingsRegistry
}

func (v *VotingService) CastVote(ctx context.Context, actor, electionID string, personID types.PersonID, choiceID, method string) (types.VoteReceipt, error) {
	const op = "service.VotingService.CastVote"

	method, err := types.ParseVerificationMethod(method)
	if err != nil {
		return types.VoteReceipt{}, err
	}
	electionID = strings.TrimSpace(electionID)
	choiceID = strings.TrimSpace(choiceID)

	var receipt types.VoteReceipt
	err = v.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		p, err := v.st.Persons.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if !p.Active {
			return vaulterr.Newf(vaulterr.Unauthorized, op, "person %d is deactivated", personID)
		}
		now := v.now()

		if method == types.VerifyIris {
			window, err := v.settings.Duration(ctx, KeyVoteVerificationWindow)
			if err != nil {
				return err
			}
			if _, ok, err := v.st.Access.LatestGrant(ctx, personID, now.Add(-window)); err != nil {
				return err
			} else if !ok {
				return vaulterr.Newf(vaulterr.Unauthorized, op,
					"no granted iris match for person %d in the last %s", personID, window)
			}
		}

		nonce, err := chain.NewNonce()
		if err != nil {
			return err
		}
		hash := chain.VoteHash(personID, electionID, choiceID, nonce)
		rec, err := types.NewVotingRecord(electionID, personID, choiceID, hash, method, now)
		if err != nil {
			return err
		}
		if _, err := v.st.Votes.InsertVote(ctx, rec); err != nil {
			return err
		}

		entry, err := v.audit.record(ctx, actor, types.ActionVoteCast, electionID, map[string]any{
			"person_id": int64(personID),
			"method":    method,
			"vote_hash": hash,
		})
		if err != nil {
			return err
		}
		receipt = types.VoteReceipt{
			ElectionID: electionID,
			VoteHash:   hash,
			Nonce:      hex.EncodeToString(nonce),
			CastAt:     now,
			AuditSeq:   entry.Seq,
		}
		return nil
	})
	if errors.Is(err, vaulterr.DuplicateVote) {
		v.metrics.IncrementDuplicateVote()
		v.log.Info().Str("election_id", electionID).Int64("person_id", int64(personID)).Msg("duplicate vote rejected")
	}
	if err != nil {
		return types.VoteReceipt{}, storageErr(op, err)
	}
	v.metrics.IncrementVote()
	return receipt, nil
}

// Tally counts plaintext choices in one read snapshot.
func (v *VotingService) Tally(ctx context.Context, electionID string) (types.Tally, error) {
	const op = "service.VotingService.Tally"

	t := types.Tally{ElectionID: strings.TrimSpace(electionID)}
	err := dbpkg.ReadTx(ctx, v.db, func(ctx context.Context, _ dbpkg.Querier) error {
		counts, err := v.st.Votes.CountByChoice(ctx, t.ElectionID)
		if err != nil {
			return err
		}
		t.Counts = counts
		for _, n := range counts {
			t.Total += n
		}
		return nil
	})
	if err != nil {
		return types.Tally{}, storageErr(op, err)
	}
	return t, nil
}

// VerifyReceipt reports whether the vote stored for personID matches the
// receipt and the choice the voter claims.
func (v *VotingService) VerifyReceipt(ctx context.Context, receipt types.VoteReceipt, personID types.PersonID, choiceID string) (bool, error) {
	const op = "service.VotingService.VerifyReceipt"

	nonce, err := hex.DecodeString(receipt.Nonce)
	if err != nil || len(nonce) != chain.NonceSize {
		return false, vaulterr.Newf(vaulterr.Invalid, op, "malformed receipt nonce")
	}
	rec, err := v.st.Votes.GetVote(ctx, receipt.ElectionID, personID)
	if err != nil {
		return false, storageErr(op, err)
	}
	want := chain.VoteHash(personID, receipt.ElectionID, strings.TrimSpace(choiceID), nonce)
	ok := subtle.ConstantTimeCompare([]byte(want), []byte(rec.VoteHash)) == 1 &&
		subtle.ConstantTimeCompare([]byte(want), []byte(receipt.VoteHash)) == 1
	return ok, nil
}

func (v *VotingService) HasVoted(ctx context.Context, electionID string, personID types.PersonID) (bool, error) {
	ok, err := v.st.Votes.HasVoted(ctx, strings.TrimSpace(electionID), personID)
	return ok, storageErr("service.VotingService.HasVoted", err)
}
