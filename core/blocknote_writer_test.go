package core

import (
	"context"
	"testing"
)

func TestBlocknoteWriteReadRoundTrip(t *testing.T) {
	client := newFakeLedgerClient()
	_, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}

	writer := NewBlocknoteWriter(client, nil)
	content := []byte("this is the payload body, long enough to span a couple of chunks maybe")
	result, err := writer.Write(context.Background(), mnemonic, content, WriteOptions{MIME: "text/plain", Title: "doc"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if result.PayloadTransactionID == "" {
		t.Fatal("expected a non-empty payload transaction id")
	}
	if result.Fees == 0 {
		t.Fatal("expected accumulated fees to be non-zero")
	}

	reader := NewBlocknoteReader(client, nil)
	read, err := reader.Read(context.Background(), result.PayloadTransactionID, ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(read.Content) != string(content) {
		t.Fatalf("Read content = %q, want %q", read.Content, content)
	}
	title, ok := read.Payload.PlainTitle()
	if !ok || title != "doc" {
		t.Fatalf("PlainTitle() = %q, %v, want \"doc\", true", title, ok)
	}
}

func TestBlocknoteWriteEncryptedRoundTrip(t *testing.T) {
	client := newFakeLedgerClient()
	_, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}

	writer := NewBlocknoteWriter(client, nil)
	content := []byte("secret payload")
	key := make([]byte, 32)
	key[0] = 7
	result, err := writer.Write(context.Background(), mnemonic, content, WriteOptions{MIME: "text/plain", Title: "secret title", AESKey: key})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader := NewBlocknoteReader(client, nil)
	if _, err := reader.Read(context.Background(), result.PayloadTransactionID, ReadOptions{}); err != ErrMissingKey {
		t.Fatalf("Read without key: err = %v, want ErrMissingKey", err)
	}

	read, err := reader.Read(context.Background(), result.PayloadTransactionID, ReadOptions{AESKey: key})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(read.Content) != string(content) {
		t.Fatalf("Read content = %q, want %q", read.Content, content)
	}
	title, ok := read.Payload.PlainTitle()
	if !ok || title != "secret title" {
		t.Fatalf("PlainTitle() = %q, %v, want \"secret title\", true", title, ok)
	}
}

func TestBlocknoteWriteSurvivesTransientSubmitFailures(t *testing.T) {
	client := newFakeLedgerClient()
	client.failSubmitUntil = 3
	_, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}

	writer := NewBlocknoteWriter(client, nil)
	content := []byte("small")
	result, err := writer.Write(context.Background(), mnemonic, content, WriteOptions{MIME: "text/plain"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if result.PayloadTransactionID == "" {
		t.Fatal("expected a payload transaction id despite transient submit failures")
	}
}

func TestBlocknoteWriteSubmitExpiredIsTerminal(t *testing.T) {
	client := newFakeLedgerClient()
	client.neverConfirm = true

	senderWallet, _, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}
	receiverWallet, _, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}
	senderSK, senderPub := senderWallet.RootKeypair()
	_, receiverPub := receiverWallet.RootKeypair()
	sender := pubKeyToAddress(senderPub)
	receiver := pubKeyToAddress(receiverPub)

	params, err := client.SuggestedParams(context.Background())
	if err != nil {
		t.Fatalf("SuggestedParams: %v", err)
	}
	// Advance the fake ledger's current round past this payment's
	// last-valid round, simulating a transaction that sat in the pool too
	// long to ever be confirmed.
	client.round = params.LastValid + 1

	writer := NewBlocknoteWriter(client, nil)
	_, _, err = writer.submitWithRetry(context.Background(), sender, receiver, senderSK, []byte("note"), nil, &params)
	se, ok := err.(*SubmitError)
	if !ok {
		t.Fatalf("err = %v (%T), want *SubmitError", err, err)
	}
	if se.Kind != SubmitExpired {
		t.Fatalf("SubmitError.Kind = %v, want SubmitExpired", se.Kind)
	}
}

func TestBlocknoteWriteSimulateNeverSubmits(t *testing.T) {
	client := newFakeLedgerClient()
	_, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}

	writer := NewBlocknoteWriter(client, nil)
	result, err := writer.Write(context.Background(), mnemonic, []byte("never submitted"), WriteOptions{MIME: "text/plain", Simulate: true})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if result.PayloadTransactionID != "" {
		t.Fatal("simulated writes must never expose a payload transaction id")
	}
	if result.Fees == 0 {
		t.Fatal("simulated writes must still estimate fees")
	}
	if len(client.order) != 0 {
		t.Fatal("simulated writes must never submit any transaction")
	}
}

func TestBlocknoteWriteRevisionOwnershipMismatch(t *testing.T) {
	client := newFakeLedgerClient()
	_, ownerMnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}
	_, otherMnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}

	writer := NewBlocknoteWriter(client, nil)
	original, err := writer.Write(context.Background(), ownerMnemonic, []byte("v1"), WriteOptions{MIME: "text/plain"})
	if err != nil {
		t.Fatalf("Write original: %v", err)
	}

	if _, err := writer.Write(context.Background(), otherMnemonic, []byte("v2"), WriteOptions{MIME: "text/plain", RevisionOf: original.PayloadTransactionID}); err != ErrRevisionOwnershipMismatch {
		t.Fatalf("Write revision from a different wallet: err = %v, want ErrRevisionOwnershipMismatch", err)
	}
}

func TestBlocknoteWriteRevisionRoundTrip(t *testing.T) {
	client := newFakeLedgerClient()
	_, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		t.Fatalf("NewRandomWallet: %v", err)
	}

	writer := NewBlocknoteWriter(client, nil)
	original, err := writer.Write(context.Background(), mnemonic, []byte("v1"), WriteOptions{MIME: "text/plain"})
	if err != nil {
		t.Fatalf("Write original: %v", err)
	}
	revised, err := writer.Write(context.Background(), mnemonic, []byte("v2"), WriteOptions{MIME: "text/plain", RevisionOf: original.PayloadTransactionID})
	if err != nil {
		t.Fatalf("Write revision: %v", err)
	}

	reader := NewBlocknoteReader(client, nil)
	read, err := reader.Read(context.Background(), original.PayloadTransactionID, ReadOptions{})
	if err != nil {
		t.Fatalf("Read following revision: %v", err)
	}
	if string(read.Content) != "v2" {
		t.Fatalf("Read content = %q, want the revised payload %q", read.Content, "v2")
	}
}
