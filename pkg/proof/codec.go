package proof

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// EncodingError reports a block that cannot be canonically encoded
// (non-serializable payload, NaN/Inf numbers).
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("proof: encoding failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("proof: encoding failed: %s", e.Reason)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// hashInput is the exact content covered by a block's hash. The stored
// hash and the optional signature fields are excluded.
type hashInput struct {
	Index     int            `json:"index"`
	Branch    Branch         `json:"branch"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_hash"`
	Timestamp string         `json:"timestamp"`
	Approved  bool           `json:"approved"`
	Degraded  bool           `json:"degraded"`
}

// EncodeBlock returns the canonical bytes hashed into a block's hash.
//
// Canonicalization: payload strings are NFC-normalized, the timestamp is
// rendered as RFC 3339 UTC with nanosecond precision, and the JSON is
// passed through an RFC 8785 (JCS) transform — sorted keys, no
// insignificant whitespace, no HTML escaping — so independent branches
// produce identical bytes for identical inputs.
func EncodeBlock(b Block) ([]byte, error) {
	in := hashInput{
		Index:     b.Index,
		Branch:    b.Branch,
		Payload:   normalizeValue(b.Payload).(map[string]any),
		PrevHash:  b.PrevHash,
		Timestamp: b.Timestamp.UTC().Format(time.RFC3339Nano),
		Approved:  b.Approved,
		Degraded:  b.Degraded,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(in); err != nil {
		return nil, &EncodingError{Reason: "payload not JSON-serializable", Err: err}
	}

	canonical, err := jcs.Transform(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	if err != nil {
		return nil, &EncodingError{Reason: "canonical transform failed", Err: err}
	}
	return canonical, nil
}

// HashBlock returns the SHA-256 hex digest of a block's canonical encoding.
func HashBlock(b Block) (string, error) {
	raw, err := EncodeBlock(b)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// normalizeValue walks a payload value and NFC-normalizes every string,
// keys included, so visually identical unicode hashes identically.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[norm.NFC.String(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = normalizeValue(elem)
		}
		return out
	default:
		return v
	}
}
