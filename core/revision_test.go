package core

import "testing"

func validPayloadID() string {
	return b32.EncodeToString(make([]byte, 32))
}

func TestRevisionNoteRoundTrip(t *testing.T) {
	id := validPayloadID()
	note, err := MarshalRevisionNote(id)
	if err != nil {
		t.Fatalf("MarshalRevisionNote: %v", err)
	}
	got, ok := ParseRevisionNote(note)
	if !ok || got != id {
		t.Fatalf("ParseRevisionNote() = %q, %v, want %q, true", got, ok, id)
	}
}

func TestMarshalRevisionNoteRejectsWrongLength(t *testing.T) {
	if _, err := MarshalRevisionNote("too-short"); err == nil {
		t.Fatal("expected an error for a payload id of the wrong length")
	}
}

func TestParseRevisionNoteRejectsExtraFields(t *testing.T) {
	id := validPayloadID()
	note := []byte(`{"revision":"` + id + `","extra":true}`)
	if _, ok := ParseRevisionNote(note); ok {
		t.Fatal("a note with extra fields must not be mistaken for a revision tag")
	}
}

func TestParseRevisionNoteRejectsOrdinaryPayload(t *testing.T) {
	if _, ok := ParseRevisionNote([]byte("stop")); ok {
		t.Fatal("the literal stop note must never parse as a revision tag")
	}
	if _, ok := ParseRevisionNote([]byte(`{"app":"ledgernote","blocknote":"..."}`)); ok {
		t.Fatal("an unrelated JSON object must not parse as a revision tag")
	}
}
