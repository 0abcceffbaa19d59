// Package chain computes the hashes that make the audit ledger and vote
// receipts tamper-evident.
//
// Pre-images are encoded as protobuf wire fields so adjacent fields cannot be
// shifted into one another ("ab"+"c" and "a"+"bc" hash differently).
package chain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/BrandonDHaskell/irisvault/internal/irisvault/types"
)

// Genesis is the prev_hash of the first ledger entry.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

const NonceSize = 32

// RecordHash = SHA-256(ts ‖ actor ‖ action ‖ resource ‖ detail ‖ prev_hash).
func RecordHash(ts time.Time, actor, action, resource, detail, prevHash string) string {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ts.UTC().UnixMilli()))
	b = appendString(b, 2, actor)
	b = appendString(b, 3, action)
	b = appendString(b, 4, resource)
	b = appendString(b, 5, detail)
	b = appendString(b, 6, prevHash)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// EntryHash recomputes the hash of a stored entry from its fields.
func EntryHash(e types.AuditEntry) string {
	return RecordHash(e.Timestamp, e.Actor, e.Action, e.Resource, e.Detail, e.PrevHash)
}

// VoteHash = SHA-256(person_id ‖ election_id ‖ choice_id ‖ nonce).
func VoteHash(personID types.PersonID, electionID, choiceID string, nonce []byte) string {
	var b []byte
	b = appendString(b, 1, strconv.FormatInt(int64(personID), 10))
	b = appendString(b, 2, electionID)
	b = appendString(b, 3, choiceID)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, nonce)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// NewNonce returns NonceSize random bytes.
func NewNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("vote nonce: %w", err)
	}
	return n, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
