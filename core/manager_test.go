package core

import (
	"context"
	"testing"
	"time"
)

func newTestManager(t *testing.T) (*Manager, *fakeLedgerClient) {
	t.Helper()
	client := newFakeLedgerClient()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	secret, err := NewProcessSecret("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd")
	if err != nil {
		t.Fatalf("NewProcessSecret: %v", err)
	}
	return NewManager(client, store, secret, "ledgernote-test", nil), client
}

func awaitJobForTest(t *testing.T, m *Manager, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.GetJob(id)
		if !ok {
			t.Fatalf("GetJob(%s): not found", id)
		}
		if job.Status == JobDone || job.Status == JobError {
			return job
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state in time", id)
	return Job{}
}

func TestManagerPrepareAndRunBootstrapUpload(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()
	var userAddr Address
	userAddr[0] = 42

	prepID := m.PrepareBootstrapTransaction(ctx, userAddr, []byte("hello bootstrap"), PrepareBootstrapOptions{MIME: "text/plain"})
	prepJob := awaitJobForTest(t, m, prepID)
	if prepJob.Err != nil {
		t.Fatalf("prepare job failed: %v", prepJob.Err)
	}
	unsigned, ok := prepJob.Result.(*UnsignedTxn)
	if !ok {
		t.Fatalf("prepare job result type = %T, want *UnsignedTxn", prepJob.Result)
	}

	signed, err := client.Sign(ctx, *unsigned, []byte("user-sk"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := client.Submit(ctx, signed); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := client.WaitForConfirmation(ctx, signed); err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}

	var bootstrapKey string
	secret, err := m.decryptBootstrapNote(unsigned.Note)
	if err != nil {
		t.Fatalf("decryptBootstrapNote: %v", err)
	}
	bootstrapKey = secret.BootstrapKey

	runID := m.RunFromBootstrapTransaction(ctx, unsigned.ID, bootstrapKey, FinishEncryption{})
	runJob := awaitJobForTest(t, m, runID)
	if runJob.Err != nil {
		t.Fatalf("run job failed: %v", runJob.Err)
	}
	result, ok := runJob.Result.(*WriteResult)
	if !ok {
		t.Fatalf("run job result type = %T, want *WriteResult", runJob.Result)
	}
	if result.PayloadTransactionID == "" {
		t.Fatal("expected a non-empty payload transaction id")
	}

	reader := NewBlocknoteReader(client, nil)
	read, err := reader.Read(ctx, result.PayloadTransactionID, ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(read.Content) != "hello bootstrap" {
		t.Fatalf("Read content = %q, want %q", read.Content, "hello bootstrap")
	}

	if _, found := m.store.Get(unsigned.ID); found {
		t.Fatal("a completed run must delete its persisted upload record")
	}
}

func TestManagerRunRejectsWrongBootstrapKey(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()
	var userAddr Address
	userAddr[0] = 7

	prepID := m.PrepareBootstrapTransaction(ctx, userAddr, []byte("x"), PrepareBootstrapOptions{MIME: "text/plain"})
	prepJob := awaitJobForTest(t, m, prepID)
	if prepJob.Err != nil {
		t.Fatalf("prepare job failed: %v", prepJob.Err)
	}
	unsigned := prepJob.Result.(*UnsignedTxn)

	signed, err := client.Sign(ctx, *unsigned, []byte("user-sk"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := client.Submit(ctx, signed); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := client.WaitForConfirmation(ctx, signed); err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}

	runID := m.RunFromBootstrapTransaction(ctx, unsigned.ID, "wrong-key", FinishEncryption{})
	runJob := awaitJobForTest(t, m, runID)
	if runJob.Err != ErrInvalidBootstrapKey {
		t.Fatalf("run job err = %v, want ErrInvalidBootstrapKey", runJob.Err)
	}
}

func TestManagerJobIsEvictedAfterTerminalRead(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	var userAddr Address
	prepID := m.PrepareBootstrapTransaction(ctx, userAddr, []byte("x"), PrepareBootstrapOptions{MIME: "text/plain"})
	awaitJobForTest(t, m, prepID)

	if _, ok := m.GetJob(prepID); ok {
		t.Fatal("a terminal job must be evicted once observed")
	}
}

func TestManagerGetAllSendersAndPayloadLookup(t *testing.T) {
	m, client := newTestManager(t)
	ctx := context.Background()
	var userAddr Address
	userAddr[0] = 1

	prepID := m.PrepareBootstrapTransaction(ctx, userAddr, []byte("find me"), PrepareBootstrapOptions{MIME: "text/plain"})
	prepJob := awaitJobForTest(t, m, prepID)
	unsigned := prepJob.Result.(*UnsignedTxn)

	signed, err := client.Sign(ctx, *unsigned, []byte("user-sk"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := client.Submit(ctx, signed); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := client.WaitForConfirmation(ctx, signed); err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}

	secret, err := m.decryptBootstrapNote(unsigned.Note)
	if err != nil {
		t.Fatalf("decryptBootstrapNote: %v", err)
	}

	senders, err := m.GetAllSenders(ctx, userAddr)
	if err != nil {
		t.Fatalf("GetAllSenders: %v", err)
	}
	if len(senders) != 1 || senders[0] != unsigned.Receiver {
		t.Fatalf("GetAllSenders = %+v, want exactly [%v]", senders, unsigned.Receiver)
	}

	recoveredMnemonic, err := m.GetBootstrapSenderMnemonic(ctx, userAddr, unsigned.Receiver)
	if err != nil {
		t.Fatalf("GetBootstrapSenderMnemonic: %v", err)
	}
	if recoveredMnemonic != secret.SenderMnemonic {
		t.Fatal("GetBootstrapSenderMnemonic returned the wrong mnemonic")
	}

	runID := m.RunFromBootstrapTransaction(ctx, unsigned.ID, secret.BootstrapKey, FinishEncryption{})
	runJob := awaitJobForTest(t, m, runID)
	if runJob.Err != nil {
		t.Fatalf("run job failed: %v", runJob.Err)
	}
	result := runJob.Result.(*WriteResult)

	payloadID, err := m.GetPayloadIDFromSender(ctx, unsigned.Receiver)
	if err != nil {
		t.Fatalf("GetPayloadIDFromSender: %v", err)
	}
	if payloadID != result.PayloadTransactionID {
		t.Fatalf("GetPayloadIDFromSender = %s, want %s", payloadID, result.PayloadTransactionID)
	}
}
