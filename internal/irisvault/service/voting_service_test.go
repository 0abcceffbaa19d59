package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

func TestDuplicateVoteRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.enroll(t, "P1")

	receipt, err := f.v.Voting.CastVote(ctx, "op", "E1", p1, "C3", types.VerifyOperator)
	require.NoError(t, err)
	assert.Len(t, receipt.VoteHash, 64)
	assert.Len(t, receipt.Nonce, 64)
	before := f.auditLen(t)

	_, err = f.v.Voting.CastVote(ctx, "op", "E1", p1, "C7", types.VerifyOperator)
	require.ErrorIs(t, err, vaulterr.DuplicateVote)
	assert.Equal(t, before, f.auditLen(t))

	tally, err := f.v.Voting.Tally(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Counts["C3"])
	assert.Equal(t, 0, tally.Counts["C7"])
	assert.Equal(t, 1, tally.Total)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VotesCast))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DuplicateVotes))

	// A different election is independent.
	_, err = f.v.Voting.CastVote(ctx, "op", "E2", p1, "C7", types.VerifyOperator)
	require.NoError(t, err)
}

func TestConcurrentVotesSamePerson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.enroll(t, "P1")

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.v.Voting.CastVote(ctx, "op", "E1", p1, fmt.Sprintf("C%d", i), types.VerifyOperator)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case vaulterr.KindOf(err) == vaulterr.DuplicateVote:
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dupes)
	assert.Equal(t, 1, f.count(t, "voting_records"))
}

func TestConcurrentVotesDistinctPersons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	ids := make([]types.PersonID, n)
	for i := range ids {
		ids[i] = f.enroll(t, fmt.Sprintf("P%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i, id := range ids {
		choice := "yes"
		if i%3 == 0 {
			choice = "no"
		}
		wg.Add(1)
		go func(id types.PersonID, choice string) {
			defer wg.Done()
			_, err := f.v.Voting.CastVote(ctx, "op", "E1", id, choice, types.VerifyOperator)
			errs <- err
		}(id, choice)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tally, err := f.v.Voting.Tally(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"yes": 6, "no": 4}, tally.Counts)
	assert.Equal(t, n, tally.Total)

	_, err = f.v.Audit.VerifyChain(ctx, types.AuditRange{})
	require.NoError(t, err)
}

func TestIrisVerificationWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.enroll(t, "P1")
	p2 := f.enroll(t, "P2")

	_, err := f.v.Voting.CastVote(ctx, "op", "E1", p1, "C1", types.VerifyIris)
	require.ErrorIs(t, err, vaulterr.Unauthorized, "no match yet")

	for _, id := range []types.PersonID{p1, p2} {
		dec, err := f.v.Biometrics.RecordMatchAttempt(ctx, "engine", types.MatchAttempt{Confidence: 0.9, PersonID: pid(id)})
		require.NoError(t, err)
		require.True(t, dec.Granted)
	}

	_, err = f.v.Voting.CastVote(ctx, "op", "E1", p1, "C1", types.VerifyIris)
	require.NoError(t, err)

	f.clk.Advance(5*time.Minute + time.Second)
	_, err = f.v.Voting.CastVote(ctx, "op", "E1", p2, "C1", types.VerifyIris)
	require.ErrorIs(t, err, vaulterr.Unauthorized, "match is stale")

	_, err = f.v.Voting.CastVote(ctx, "op", "E1", p2, "C1", types.VerifyOperator)
	require.NoError(t, err)
}

func TestCastVoteRejectsIneligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.enroll(t, "P1")
	require.NoError(t, f.v.Biometrics.Deactivate(ctx, "admin", p1))

	_, err := f.v.Voting.CastVote(ctx, "op", "E1", p1, "C1", types.VerifyOperator)
	assert.ErrorIs(t, err, vaulterr.Unauthorized)
	_, err = f.v.Voting.CastVote(ctx, "op", "E1", 404, "C1", types.VerifyOperator)
	assert.ErrorIs(t, err, vaulterr.NotFound)
	_, err = f.v.Voting.CastVote(ctx, "op", "E1", p1, "C1", "sms")
	assert.ErrorIs(t, err, vaulterr.Invalid)

	assert.Equal(t, 0, f.count(t, "voting_records"))
}

func TestVerifyReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.enroll(t, "P1")
	p2 := f.enroll(t, "P2")

	receipt, err := f.v.Voting.CastVote(ctx, "op", "E1", p1, "C3", types.VerifyOperator)
	require.NoError(t, err)

	ok, err := f.v.Voting.VerifyReceipt(ctx, receipt, p1, "C3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.v.Voting.VerifyReceipt(ctx, receipt, p1, "C7")
	require.NoError(t, err)
	assert.False(t, ok, "wrong choice")

	forged := receipt
	flip := "00"
	if receipt.Nonce[:2] == flip {
		flip = "ff"
	}
	forged.Nonce = flip + receipt.Nonce[2:]
	ok, err = f.v.Voting.VerifyReceipt(ctx, forged, p1, "C3")
	require.NoError(t, err)
	assert.False(t, ok, "wrong nonce")

	_, err = f.v.Voting.VerifyReceipt(ctx, receipt, p2, "C3")
	assert.ErrorIs(t, err, vaulterr.NotFound)

	forged.Nonce = "zz"
	_, err = f.v.Voting.VerifyReceipt(ctx, forged, p1, "C3")
	assert.ErrorIs(t, err, vaulterr.Invalid)

	voted, err := f.v.Voting.HasVoted(ctx, "E1", p1)
	require.NoError(t, err)
	assert.True(t, voted)
	voted, err = f.v.Voting.HasVoted(ctx, "E1", p2)
	require.NoError(t, err)
	assert.False(t, voted)
}
