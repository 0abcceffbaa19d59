package chain

import (
	"fmt"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// Verify checks a contiguous run of entries. prevHash is the stored
// record_hash of the entry just before entries[0] (Genesis when the run
// starts the ledger); prevValid says whether that entry's own hash checked
// out.
//
// Every entry whose stored record_hash differs from its recomputation is
// reported at its own seq. A prev_hash that does not match the preceding
// stored hash is reported only when the preceding entry is itself intact,
// so a single tampered field is reported at exactly one position.
func Verify(entries []types.AuditEntry, prevHash string, prevValid bool) []types.Mismatch {
	var out []types.Mismatch
	for _, e := range entries {
		want := EntryHash(e)
		selfOK := want == e.RecordHash
		switch {
		case !selfOK:
			out = append(out, types.Mismatch{
				Seq:    e.Seq,
				Kind:   types.MismatchHash,
				Detail: fmt.Sprintf("stored %s, computed %s", short(e.RecordHash), short(want)),
			})
		case e.PrevHash != prevHash && prevValid:
			out = append(out, types.Mismatch{
				Seq:    e.Seq,
				Kind:   types.MismatchLink,
				Detail: fmt.Sprintf("prev_hash %s does not match preceding record_hash %s", short(e.PrevHash), short(prevHash)),
			})
		}
		prevHash = e.RecordHash
		prevValid = selfOK
	}
	return out
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
