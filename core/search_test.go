package core

import (
	"context"
	"testing"
)

func submitPayment(t *testing.T, client *fakeLedgerClient, sender, receiver Address, note []byte) ConfirmedTxn {
	t.Helper()
	ctx := context.Background()
	params, err := client.SuggestedParams(ctx)
	if err != nil {
		t.Fatalf("SuggestedParams: %v", err)
	}
	unsigned, err := client.BuildPayment(ctx, params, sender, receiver, 0, note, nil)
	if err != nil {
		t.Fatalf("BuildPayment: %v", err)
	}
	signed, err := client.Sign(ctx, unsigned, []byte("sk"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := client.Submit(ctx, signed); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	confirmed, err := client.WaitForConfirmation(ctx, signed)
	if err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	return *confirmed
}

func TestAllReceivedFiltersBySenderAndReceiver(t *testing.T) {
	client := newFakeLedgerClient()
	var a, b, c Address
	a[0], b[0], c[0] = 1, 2, 3

	want := submitPayment(t, client, a, b, []byte("from a to b"))
	submitPayment(t, client, c, b, []byte("from c to b, should be excluded"))
	submitPayment(t, client, a, c, []byte("from a to c, should be excluded"))

	search := NewSearcher(client, nil)
	got, err := search.AllReceived(context.Background(), a, b, "", 0)
	if err != nil {
		t.Fatalf("AllReceived: %v", err)
	}
	if len(got) != 1 || got[0].ID != want.ID {
		t.Fatalf("AllReceived returned %d txns, want exactly the one from a to b", len(got))
	}
}

func TestAllReceivedPaginates(t *testing.T) {
	client := newFakeLedgerClient()
	client.pageSize = 2
	var a, b Address
	a[0], b[0] = 1, 2

	for i := 0; i < 5; i++ {
		submitPayment(t, client, a, b, []byte{byte(i)})
	}

	search := NewSearcher(client, nil)
	got, err := search.AllReceived(context.Background(), a, b, "", 0)
	if err != nil {
		t.Fatalf("AllReceived: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("AllReceived returned %d txns across pages, want 5", len(got))
	}
}

func TestLastReceivedReturnsHighestRound(t *testing.T) {
	client := newFakeLedgerClient()
	var a, b Address
	a[0], b[0] = 1, 2

	submitPayment(t, client, a, b, []byte("first"))
	last := submitPayment(t, client, a, b, []byte("second"))

	search := NewSearcher(client, nil)
	got, err := search.LastReceived(context.Background(), a, b, 0)
	if err != nil {
		t.Fatalf("LastReceived: %v", err)
	}
	if got == nil || got.ID != last.ID {
		t.Fatalf("LastReceived returned %+v, want the most recently confirmed transaction", got)
	}
}

func TestLastReceivedNoneFound(t *testing.T) {
	client := newFakeLedgerClient()
	var a, b Address
	search := NewSearcher(client, nil)
	got, err := search.LastReceived(context.Background(), a, b, 0)
	if err != nil {
		t.Fatalf("LastReceived: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil when no transactions exist")
	}
}

func TestFollowRevisionChainWalksToTip(t *testing.T) {
	client := newFakeLedgerClient()
	var sender, receiver Address
	sender[0], receiver[0] = 1, 2

	original := submitPayment(t, client, sender, receiver, []byte("v1"))
	rev2ID := validPayloadID()
	revNote, err := MarshalRevisionNote(rev2ID)
	if err != nil {
		t.Fatalf("MarshalRevisionNote: %v", err)
	}
	submitPayment(t, client, sender, receiver, revNote)

	search := NewSearcher(client, nil)
	finalID, hops, err := search.FollowRevisionChain(context.Background(), sender, receiver, original.ID, 0)
	if err != nil {
		t.Fatalf("FollowRevisionChain: %v", err)
	}
	if hops != 1 || finalID != rev2ID {
		t.Fatalf("FollowRevisionChain = (%s, %d), want (%s, 1)", finalID, hops, rev2ID)
	}
}

func TestIsStopNote(t *testing.T) {
	if !IsStopNote([]byte("stop")) {
		t.Fatal("IsStopNote must match the literal \"stop\"")
	}
	if IsStopNote([]byte("\"stop\"")) {
		t.Fatal("IsStopNote must not match a JSON-quoted lookalike")
	}
	if IsStopNote([]byte("STOP")) {
		t.Fatal("IsStopNote must be case-sensitive")
	}
}

func TestByAddressFindsBothRoles(t *testing.T) {
	client := newFakeLedgerClient()
	var a, b Address
	a[0], b[0] = 5, 6
	submitPayment(t, client, a, b, []byte("a to b"))

	search := NewSearcher(client, nil)
	asSender, err := search.ByAddress(context.Background(), a, RoleSender, 0)
	if err != nil {
		t.Fatalf("ByAddress(sender): %v", err)
	}
	if len(asSender) != 1 {
		t.Fatalf("ByAddress(a, RoleSender) = %d txns, want 1", len(asSender))
	}
	asReceiver, err := search.ByAddress(context.Background(), b, RoleReceiver, 0)
	if err != nil {
		t.Fatalf("ByAddress(receiver): %v", err)
	}
	if len(asReceiver) != 1 {
		t.Fatalf("ByAddress(b, RoleReceiver) = %d txns, want 1", len(asReceiver))
	}
}
