package core

// Payload-metadata and data-record framing.

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// MaxNoteSize is the hard per-record size limit every on-chain note must
// respect.
const MaxNoteSize = 1024

// counterSize is the width of the little-endian counter prefixing every
// data record.
const counterSize = 4

// EncryptedTitle is the metadata.title shape when encrypt_title is set.
type EncryptedTitle struct {
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// Metadata is the JSON payload carried in the payload transaction's note.
type Metadata struct {
	Version int `json:"version"`

	// Title is either a plain string or, when the title is encrypted, an
	// EncryptedTitle. Both forms round-trip through RawTitle.
	RawTitle json.RawMessage `json:"title"`

	MIME string `json:"mime"`
	Type string `json:"type,omitempty"` // "stream" for streamnote

	Size int64 `json:"size,omitempty"` // blocknote only
	Txns int   `json:"txns,omitempty"` // blocknote only

	Compression string `json:"compression,omitempty"`

	IV  string `json:"iv,omitempty"`
	Tag string `json:"tag,omitempty"`

	Salt string `json:"salt,omitempty"`

	AddID uint32 `json:"addid,omitempty"`
	AccID uint32 `json:"accid,omitempty"`
}

const MetadataVersion = 1

// SetPlainTitle stores title as a bare JSON string.
func (m *Metadata) SetPlainTitle(title string) error {
	raw, err := json.Marshal(title)
	if err != nil {
		return err
	}
	m.RawTitle = raw
	return nil
}

// SetEncryptedTitle stores title as an {iv,tag,data} object.
func (m *Metadata) SetEncryptedTitle(t EncryptedTitle) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	m.RawTitle = raw
	return nil
}

// PlainTitle returns the title if it was stored as a bare string.
func (m *Metadata) PlainTitle() (string, bool) {
	var s string
	if err := json.Unmarshal(m.RawTitle, &s); err != nil {
		return "", false
	}
	return s, true
}

// EncryptedTitleValue returns the title if it was stored encrypted.
func (m *Metadata) EncryptedTitleValue() (EncryptedTitle, bool) {
	var t EncryptedTitle
	if err := json.Unmarshal(m.RawTitle, &t); err != nil {
		return EncryptedTitle{}, false
	}
	if t.IV == "" && t.Tag == "" && t.Data == "" {
		return EncryptedTitle{}, false
	}
	return t, true
}

// MarshalNote renders metadata to its on-chain JSON form, failing with
// ErrPayloadTooLarge if it would not fit in one note.
func (m *Metadata) MarshalNote() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if len(raw) > MaxNoteSize {
		return nil, ErrPayloadTooLarge
	}
	return raw, nil
}

// ParseMetadata reverses MarshalNote.
func ParseMetadata(note []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(note, &m); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &m, nil
}

// EncodeDataRecord prepends the 4-byte little-endian counter to chunk,
// producing one data transaction's note.
func EncodeDataRecord(counter uint32, chunk []byte) []byte {
	out := make([]byte, counterSize+len(chunk))
	binary.LittleEndian.PutUint32(out[:counterSize], counter)
	copy(out[counterSize:], chunk)
	return out
}

// DecodeDataRecord splits a data transaction's note back into its counter
// and chunk bytes.
func DecodeDataRecord(note []byte) (counter uint32, chunk []byte, err error) {
	if len(note) < counterSize {
		return 0, nil, fmt.Errorf("data record too short: %d bytes", len(note))
	}
	counter = binary.LittleEndian.Uint32(note[:counterSize])
	return counter, note[counterSize:], nil
}

// maxChunkPayload returns the maximum number of plaintext chunk bytes that
// fit into one data record once the counter prefix and any
// compress+encrypt expansion are accounted for by the caller; chunking
// itself is driven by the writer, this just bounds the post-framing
// record size.
func maxChunkPayload() int { return MaxNoteSize - counterSize }

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
