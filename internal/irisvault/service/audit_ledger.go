package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/irisvault/internal/db"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/chain"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
	"github.com/BrandonDHaskell/irisvault/internal/irisvault/vaulterr"
)

// AuditLedger is the hash-chained, append-only audit log. There is no way
// to change or remove an entry; mistakes are fixed with Correct.
type AuditLedger struct {
	*env
}

// record encodes fields as the entry's detail and appends it. An encoding
// failure aborts the caller's transaction.
func (l *AuditLedger) record(ctx context.Context, actor, action, resource string, fields map[string]any) (types.AuditEntry, error) {
	d, err := detail(fields)
	if err != nil {
		return types.AuditEntry{}, vaulterr.E(vaulterr.Invalid, "service.AuditLedger.record", err)
	}
	return l.Append(ctx, actor, action, resource, d)
}

// Append chains a new entry onto the tail. Called inside another service's
// transaction it joins that transaction, so the entry commits or rolls back
// with the change it records.
func (l *AuditLedger) Append(ctx context.Context, actor, action, resource, detail string) (types.AuditEntry, error) {
	const op = "service.AuditLedger.Append"

	actor = strings.TrimSpace(actor)
	action = strings.TrimSpace(action)
	if actor == "" || action == "" {
		return types.AuditEntry{}, vaulterr.Newf(vaulterr.Invalid, op, "actor and action are required")
	}

	var out types.AuditEntry
	err := l.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		prev := chain.Genesis
		tail, ok, err := l.st.Audit.Tail(ctx)
		if err != nil {
			return err
		}
		if ok {
			if chain.EntryHash(tail) != tail.RecordHash {
				return vaulterr.Newf(vaulterr.IntegrityViolation, op,
					"tail entry %d does not match its hash; refusing to extend the chain", tail.Seq)
			}
			prev = tail.RecordHash
		}

		e := types.AuditEntry{
			Timestamp: l.now(),
			Actor:     actor,
			Action:    action,
			Resource:  resource,
			Detail:    detail,
			PrevHash:  prev,
		}
		e.RecordHash = chain.EntryHash(e)

		seq, err := l.st.Audit.InsertAudit(ctx, e)
		if err != nil {
			return err
		}
		e.Seq = seq
		out = e
		return nil
	})
	if err != nil {
		return types.AuditEntry{}, storageErr(op, err)
	}
	return out, nil
}

// VerifyChain recomputes every entry in r and checks the links between
// them. Each tampered entry is reported at its own seq; a missing or
// reordered entry shows up as a broken link at the entry after the gap.
// When r reaches the tail, rows removed from the end are reported as
// truncation. Any mismatch also yields an IntegrityViolation error.
func (l *AuditLedger) VerifyChain(ctx context.Context, r types.AuditRange) (types.VerificationResult, error) {
	const op = "service.AuditLedger.VerifyChain"
	start := time.Now()

	var res types.VerificationResult
	err := dbpkg.ReadTx(ctx, l.db, func(ctx context.Context, _ dbpkg.Querier) error {
		entries, err := l.st.Audit.ListAudit(ctx, r)
		if err != nil {
			return err
		}

		prevHash, prevValid := chain.Genesis, true
		if len(entries) > 0 && entries[0].Seq > 1 {
			pred, ok, err := l.st.Audit.GetAudit(ctx, entries[0].Seq-1)
			if err != nil {
				return err
			}
			if ok {
				prevHash = pred.RecordHash
				prevValid = chain.EntryHash(pred) == pred.RecordHash
			} else {
				prevHash = ""
			}
		}
		res.Mismatches = chain.Verify(entries, prevHash, prevValid)
		res.Checked = len(entries)

		var last int64
		if len(entries) > 0 {
			res.FirstSeq = entries[0].Seq
			last = entries[len(entries)-1].Seq
			res.LastSeq = last
		} else if r.From > 0 {
			last = r.From - 1
		}

		hw, err := l.st.Audit.HighWaterSeq(ctx)
		if err != nil {
			return err
		}
		end := hw
		if r.To > 0 && r.To < hw {
			end = r.To
		}
		if last < end {
			res.Mismatches = append(res.Mismatches, types.Mismatch{
				Seq:    last + 1,
				Kind:   types.MismatchTruncated,
				Detail: fmt.Sprintf("seq %d..%d allocated but missing", last+1, end),
			})
		}
		return nil
	})
	if err != nil {
		return types.VerificationResult{}, storageErr(op, err)
	}

	l.metrics.ObserveVerification(len(res.Mismatches), time.Since(start))
	if !res.OK() {
		l.log.Error().
			Int("mismatches", len(res.Mismatches)).
			Int64("first_bad_seq", res.Mismatches[0].Seq).
			Msg("audit chain verification failed")
		return res, vaulterr.Newf(vaulterr.IntegrityViolation, op,
			"%d mismatch(es), first at seq %d", len(res.Mismatches), res.Mismatches[0].Seq)
	}
	return res, nil
}

// Correct appends a correction that points at an earlier entry.
func (l *AuditLedger) Correct(ctx context.Context, actor string, originalSeq int64, note string) (types.AuditEntry, error) {
	const op = "service.AuditLedger.Correct"

	var out types.AuditEntry
	err := l.writer.Do(ctx, func(ctx context.Context, _ *sql.Tx) error {
		orig, ok, err := l.st.Audit.GetAudit(ctx, originalSeq)
		if err != nil {
			return err
		}
		if !ok {
			return vaulterr.Newf(vaulterr.NotFound, op, "audit entry %d", originalSeq)
		}
		out, err = l.record(ctx, actor, types.ActionCorrection, fmt.Sprintf("audit:%d", orig.Seq), map[string]any{
			"corrects_action": orig.Action,
			"note":            note,
		})
		return err
	})
	if err != nil {
		return types.AuditEntry{}, storageErr(op, err)
	}
	return out, nil
}

func (l *AuditLedger) List(ctx context.Context, r types.AuditRange) ([]types.AuditEntry, error) {
	out, err := l.st.Audit.ListAudit(ctx, r)
	return out, storageErr("service.AuditLedger.List", err)
}

func (l *AuditLedger) Tail(ctx context.Context) (types.AuditEntry, bool, error) {
	e, ok, err := l.st.Audit.Tail(ctx)
	return e, ok, storageErr("service.AuditLedger.Tail", err)
}
