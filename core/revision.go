package core

// Revision-tag transactions.

import (
	"encoding/json"
	"fmt"
)

// revisionIDLen is the exact length a revision note's value must have to
// be considered valid.
const revisionIDLen = 52

// RevisionNote is the single-field JSON object carried by a revision-tag
// transaction.
type RevisionNote struct {
	Revision string `json:"revision"`
}

// MarshalRevisionNote renders the revision note, validating the new
// payload id's length up front so a malformed note is never produced.
func MarshalRevisionNote(newPayloadID string) ([]byte, error) {
	if len(newPayloadID) != revisionIDLen {
		return nil, fmt.Errorf("revision: payload id must be %d chars, got %d", revisionIDLen, len(newPayloadID))
	}
	return json.Marshal(RevisionNote{Revision: newPayloadID})
}

// ParseRevisionNote validates a candidate note against the revision note's
// strict shape: exactly one JSON key, value length 52, JSON-parseable. Any
// other note shape (including a superset of fields, e.g.
// {"something":true,"revision":"..."}) returns ok=false so that ordinary
// user payloads can never be mistaken for a revision tag.
func ParseRevisionNote(note []byte) (rev string, ok bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(note, &raw); err != nil {
		return "", false
	}
	if len(raw) != 1 {
		return "", false
	}
	field, present := raw["revision"]
	if !present {
		return "", false
	}
	var value string
	if err := json.Unmarshal(field, &value); err != nil {
		return "", false
	}
	if len(value) != revisionIDLen {
		return "", false
	}
	return value, true
}
