package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

type VoteStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewVoteStore(db *sql.DB, writer *dbpkg.Worker) *VoteStore {
	return &VoteStore{db: db, writer: writer}
}

// InsertVote relies on UNIQUE(election_id, person_id); there is no
// check-then-insert window.
func (s *VoteStore) InsertVote(ctx context.Context, v types.VotingRecord) (int64, error) {
	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO voting_records(election_id, person_id, choice_id, vote_hash, verification_method, cast_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, v.ElectionID, int64(v.PersonID), v.ChoiceID, v.VoteHash, v.VerificationMethod, ms(v.CastAt))
		if dbpkg.IsUniqueViolation(err) {
			return vaulterr.E(vaulterr.DuplicateVote, "sqlite.InsertVote",
				fmt.Errorf("person %d already voted in %q", v.PersonID, v.ElectionID))
		}
		if dbpkg.IsForeignKeyViolation(err) {
			return vaulterr.E(vaulterr.NotFound, "sqlite.InsertVote", err)
		}
		if err != nil {
			return fmt.Errorf("InsertVote insert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (s *VoteStore) GetVote(ctx context.Context, electionID string, personID types.PersonID) (types.VotingRecord, error) {
	var (
		v      types.VotingRecord
		pid    int64
		castMs int64
	)
	err := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT id, election_id, person_id, choice_id, vote_hash, verification_method, cast_at_ms
FROM voting_records
WHERE election_id = ? AND person_id = ?;
`, electionID, int64(personID)).Scan(&v.ID, &v.ElectionID, &pid, &v.ChoiceID, &v.VoteHash, &v.VerificationMethod, &castMs)
	if errors.Is(err, sql.ErrNoRows) {
		return types.VotingRecord{}, vaulterr.Newf(vaulterr.NotFound, "sqlite.GetVote",
			"no vote by person %d in %q", personID, electionID)
	}
	if err != nil {
		return types.VotingRecord{}, fmt.Errorf("GetVote query: %w", err)
	}
	v.PersonID = types.PersonID(pid)
	v.CastAt = fromMs(castMs)
	return v, nil
}

func (s *VoteStore) HasVoted(ctx context.Context, electionID string, personID types.PersonID) (bool, error) {
	var n int
	err := dbpkg.Conn(ctx, s.db).QueryRowContext(ctx, `
SELECT COUNT(*) FROM voting_records WHERE election_id = ? AND person_id = ?;
`, electionID, int64(personID)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("HasVoted query: %w", err)
	}
	return n > 0, nil
}

func (s *VoteStore) CountByChoice(ctx context.Context, electionID string) (map[string]int, error) {
	rows, err := dbpkg.Conn(ctx, s.db).QueryContext(ctx, `
SELECT choice_id, COUNT(*) FROM voting_records WHERE election_id = ? GROUP BY choice_id;
`, electionID)
	if err != nil {
		return nil, fmt.Errorf("CountByChoice query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			choice string
			n      int
		)
		if err := rows.Scan(&choice, &n); err != nil {
			return nil, fmt.Errorf("CountByChoice scan: %w", err)
		}
		out[choice] = n
	}
	return out, rows.Err()
}
