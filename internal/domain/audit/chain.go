package audit

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"

	"replenix/internal/core/id"
)

// GenesisHash is the predecessor hash of a tenant's first entry.
const GenesisHash = ""

// canonicalEntry fixes field order for hashing. Sequence number and hash
// are chained separately.
type canonicalEntry struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	ActorID       string          `json:"actorId"`
	Action        string          `json:"action"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	PreviousState json.RawMessage `json:"previousState"`
	NewState      json.RawMessage `json:"newState"`
	Metadata      json.RawMessage `json:"metadata"`
	IPAddress     string          `json:"ipAddress"`
	UserAgent     string          `json:"userAgent"`
	CreatedAt     string          `json:"createdAt"`
}

// Normalize prepares e for hashing and storage: snapshots are rewritten in
// canonical JSON and the timestamp is truncated to the microsecond precision
// the store keeps. Hashes computed before and after a store round trip match.
func Normalize(e Entry) (Entry, error) {
	var err error
	if e.PreviousState, err = CanonicalJSON(e.PreviousState); err != nil {
		return Entry{}, fmt.Errorf("previous state: %w", err)
	}
	if e.NewState, err = CanonicalJSON(e.NewState); err != nil {
		return Entry{}, fmt.Errorf("new state: %w", err)
	}
	if e.Metadata, err = CanonicalJSON(e.Metadata); err != nil {
		return Entry{}, fmt.Errorf("metadata: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)
	return e, nil
}

// CanonicalJSON re-encodes raw with sorted object keys and no insignificant
// whitespace. Numbers keep their literal form. Empty input yields "null".
func CanonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeHash returns hex(SHA3-256(sequence | previous hash | canonical entry)).
// e must be normalized.
func ComputeHash(seq int64, prevHash string, e Entry) (string, error) {
	var actor string
	if e.ActorID != nil {
		actor = e.ActorID.String()
	}

	body, err := json.Marshal(canonicalEntry{
		ID:            e.ID.String(),
		TenantID:      e.TenantID.String(),
		ActorID:       actor,
		Action:        e.Action,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID.String(),
		PreviousState: nullIfEmpty(e.PreviousState),
		NewState:      nullIfEmpty(e.NewState),
		Metadata:      nullIfEmpty(e.Metadata),
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}

	h := sha3.New256()
	h.Write([]byte(strconv.FormatInt(seq, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(prevHash))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

// Break reasons.
const (
	BreakSequenceGap  = "sequence_gap"
	BreakHashMismatch = "hash_mismatch"
)

// ChainBreakError reports the first entry where verification failed.
type ChainBreakError struct {
	SequenceNumber int64
	Expected       string
	Actual         string
	Reason         string
}

func (e *ChainBreakError) Error() string {
	return fmt.Sprintf("audit chain broken at sequence %d: %s (expected %s, got %s)",
		e.SequenceNumber, e.Reason, e.Expected, e.Actual)
}

// IsChainBreak reports whether err is a *ChainBreakError.
func IsChainBreak(err error) bool {
	var cb *ChainBreakError
	return errors.As(err, &cb)
}

// VerifyChain recomputes the chain over entries, which must be one tenant's
// complete chain ordered by sequence number starting at 1. It returns the
// number of verified entries and a *ChainBreakError at the first gap or
// hash mismatch. Every entry after a deleted one fails verification.
func VerifyChain(entries []Entry) (int, error) {
	prev := GenesisHash
	for i, e := range entries {
		want := int64(i + 1)
		if e.SequenceNumber != want {
			return i, &ChainBreakError{
				SequenceNumber: e.SequenceNumber,
				Expected:       strconv.FormatInt(want, 10),
				Actual:         strconv.FormatInt(e.SequenceNumber, 10),
				Reason:         BreakSequenceGap,
			}
		}

		n, err := Normalize(e)
		if err != nil {
			return i, fmt.Errorf("normalize entry %d: %w", e.SequenceNumber, err)
		}
		hash, err := ComputeHash(e.SequenceNumber, prev, n)
		if err != nil {
			return i, fmt.Errorf("hash entry %d: %w", e.SequenceNumber, err)
		}
		if hash != e.HashChain {
			return i, &ChainBreakError{
				SequenceNumber: e.SequenceNumber,
				Expected:       hash,
				Actual:         e.HashChain,
				Reason:         BreakHashMismatch,
			}
		}
		prev = e.HashChain
	}
	return len(entries), nil
}

// Seal assigns identity, sequence number and hash to e as the successor of
// prevHash. Stores call it while holding the tenant's chain lock.
func Seal(e Entry, seq int64, prevHash string, now time.Time) (Entry, error) {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	n, err := Normalize(e)
	if err != nil {
		return Entry{}, err
	}
	n.SequenceNumber = seq
	if n.HashChain, err = ComputeHash(seq, prevHash, n); err != nil {
		return Entry{}, err
	}
	return n, nil
}
