package guard

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/boshu2/warden/internal/storage"
)

// EvidenceEntry is one record of the append-only evidence log. Each entry
// carries the hash of its predecessor, so any rewrite breaks the chain.
type EvidenceEntry struct {
	ID          string             `json:"id"`
	RunID       string             `json:"runId"`
	Timestamp   time.Time          `json:"timestamp"`
	Decision    string             `json:"decision"`
	Deltas      map[string]float64 `json:"deltas"`
	GatesPassed bool               `json:"gatesPassed"`
	ContentHash string             `json:"contentHash"`
	PrevHash    string             `json:"prevHash"`
	PayloadHash string             `json:"payloadHash"`
	Hash        string             `json:"hash"`
	Signature   string             `json:"signature"`
}

// evidencePayload is the hashed portion of an entry.
type evidencePayload struct {
	ID          string             `json:"id"`
	RunID       string             `json:"runId"`
	Timestamp   string             `json:"timestamp"`
	Decision    string             `json:"decision"`
	Deltas      map[string]float64 `json:"deltas"`
	GatesPassed bool               `json:"gatesPassed"`
	ContentHash string             `json:"contentHash"`
	PrevHash    string             `json:"prevHash"`
}

// computeHashes returns the payload hash and the chained hash
// sha256(payloadHash + "\n" + prevHash).
func computeHashes(e EvidenceEntry) (payloadHash, hash string, err error) {
	deltas := e.Deltas
	if deltas == nil {
		deltas = map[string]float64{}
	}
	data, err := json.Marshal(evidencePayload{
		ID:          e.ID,
		RunID:       e.RunID,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		Decision:    e.Decision,
		Deltas:      deltas,
		GatesPassed: e.GatesPassed,
		ContentHash: e.ContentHash,
		PrevHash:    e.PrevHash,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal evidence payload: %w", err)
	}
	payloadHash = hashHex(data)
	return payloadHash, hashHex([]byte(payloadHash + "\n" + e.PrevHash)), nil
}

// Sign returns hex(HMAC-SHA256(key, hash)).
func Sign(key []byte, hash string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(hash))
	return hex.EncodeToString(mac.Sum(nil))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// appendEvidence seals e onto the log at path under an exclusive file lock.
func appendEvidence(path string, key []byte, e EvidenceEntry) (EvidenceEntry, error) {
	if strings.TrimSpace(e.RunID) == "" {
		return EvidenceEntry{}, ErrEmptyRunID
	}
	if len(key) == 0 {
		return EvidenceEntry{}, ErrNoKey
	}

	lock := storage.NewFileLock(path + ".lock")
	if err := lock.Lock(); err != nil {
		return EvidenceEntry{}, fmt.Errorf("lock evidence log: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck // close releases the lock

	entries, err := ReadEvidence(path)
	if err != nil {
		return EvidenceEntry{}, err
	}
	e.PrevHash = ""
	if n := len(entries); n > 0 {
		e.PrevHash = entries[n-1].Hash
	}

	e.PayloadHash, e.Hash, err = computeHashes(e)
	if err != nil {
		return EvidenceEntry{}, err
	}
	e.Signature = Sign(key, e.Hash)

	if err := storage.AppendJSONL(path, e); err != nil {
		return EvidenceEntry{}, fmt.Errorf("append evidence: %w", err)
	}
	return e, nil
}

// ReadEvidence loads every entry in append order. A malformed line is an error.
func ReadEvidence(path string) ([]EvidenceEntry, error) {
	entries, err := storage.ReadJSONL[EvidenceEntry](path, true)
	if err != nil {
		return nil, fmt.Errorf("read evidence log: %w", err)
	}
	return entries, nil
}

// ChainReport is the result of verifying an evidence log.
type ChainReport struct {
	Entries           int    `json:"entries"`
	Valid             bool   `json:"valid"`
	BrokenIndex       int    `json:"brokenIndex"`
	Message           string `json:"message,omitempty"`
	SignaturesChecked bool   `json:"signaturesChecked"`
}

// VerifyChain checks prev-hash links, hashes and, when key is set,
// signatures. BrokenIndex is the zero-based index of the first bad entry, or
// -1 when the chain is intact.
func VerifyChain(entries []EvidenceEntry, key []byte) ChainReport {
	r := ChainReport{Entries: len(entries), Valid: true, BrokenIndex: -1, SignaturesChecked: len(key) > 0}
	fail := func(i int, format string, args ...any) ChainReport {
		r.Valid = false
		r.BrokenIndex = i
		r.Message = fmt.Sprintf("entry %d: ", i) + fmt.Sprintf(format, args...)
		return r
	}

	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return fail(i, "prevHash mismatch: got %q want %q", e.PrevHash, prev)
		}
		payloadHash, hash, err := computeHashes(e)
		if err != nil {
			return fail(i, "%v", err)
		}
		if e.PayloadHash != payloadHash {
			return fail(i, "payloadHash mismatch")
		}
		if e.Hash != hash {
			return fail(i, "hash mismatch")
		}
		if len(key) > 0 && !hmac.Equal([]byte(e.Signature), []byte(Sign(key, e.Hash))) {
			return fail(i, "signature mismatch")
		}
		prev = e.Hash
	}
	return r
}

// ReadKey reads a hex-encoded signing key from path. A missing file is
// reported as ErrNoKey.
func ReadKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoKey, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode signing key %s: %w", path, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoKey, path)
	}
	return key, nil
}

// LoadOrCreateKey is ReadKey, except that a missing file is created holding
// a random 32-byte key with 0600 permissions.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := ReadKey(path)
	if err == nil || !errors.Is(err, ErrNoKey) {
		return key, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, err
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := storage.WriteFileAtomic(path, []byte(hex.EncodeToString(key)+"\n")); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	return key, nil
}
