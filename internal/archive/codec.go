package archive

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/jason-s-yu/scorecard/internal/storage"
)

var (
	// ErrNotFound is returned for missing records.
	ErrNotFound = storage.ErrNotFound
	// ErrCorrupt marks a record that cannot be read back. It matches
	// ErrNotFound so callers render it as missing.
	ErrCorrupt = fmt.Errorf("archive: corrupt record: %w", ErrNotFound)
)

type envelope struct {
	Checksum string          `json:"checksum"`
	Record   json.RawMessage `json:"record"`
}

func checksum(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Encode serializes rec with a blake2b-256 checksum of its body.
func Encode(rec GameRecord) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("archive: encode %s: %w", rec.ID, err)
	}
	return json.Marshal(envelope{Checksum: checksum(body), Record: body})
}

// Decode verifies and parses an encoded record. Any damage yields ErrCorrupt.
func Decode(data []byte) (GameRecord, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Record) == 0 {
		return GameRecord{}, ErrCorrupt
	}
	if env.Checksum != checksum(env.Record) {
		return GameRecord{}, ErrCorrupt
	}
	var rec GameRecord
	if err := json.Unmarshal(env.Record, &rec); err != nil {
		return GameRecord{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.ID == "" {
		return GameRecord{}, ErrCorrupt
	}
	return rec, nil
}
