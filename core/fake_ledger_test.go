package core

// In-memory LedgerClient used by every _test.go in this package, so
// writer/reader/search/manager tests exercise the real submission and
// pagination code paths without a live ledger node.

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errNotFound = errors.New("fake ledger: transaction not found")

type fakeLedgerClient struct {
	mu      sync.Mutex
	round   uint64
	pending map[string]UnsignedTxn
	byID    map[string]ConfirmedTxn
	order   []string

	// pageSize caps how many matches Search returns per call, to exercise
	// pagination; 0 means unlimited.
	pageSize int
	// failSubmitUntil forces the first N Submit calls to fail transiently,
	// exercising submitWithRetry/submitRecordAs's retry loop.
	failSubmitUntil int
	submitAttempts  int
	// neverConfirm makes Submit accept a transaction without ever
	// confirming it, so WaitForConfirmation can be driven past the
	// transaction's last-valid round to exercise the expiry path.
	neverConfirm bool
}

func newFakeLedgerClient() *fakeLedgerClient {
	return &fakeLedgerClient{
		pending: make(map[string]UnsignedTxn),
		byID:    make(map[string]ConfirmedTxn),
	}
}

func (f *fakeLedgerClient) SuggestedParams(ctx context.Context) (SuggestedParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round++
	return SuggestedParams{
		FeePerByte: 1,
		MinFee:     1000,
		FirstValid: f.round,
		LastValid:  f.round + 1000,
		GenesisID:  "test-v1",
	}, nil
}

func (f *fakeLedgerClient) BuildPayment(ctx context.Context, params SuggestedParams, sender, receiver Address, amount uint64, note []byte, closeTo *Address) (UnsignedTxn, error) {
	unsigned := UnsignedTxn{
		Sender:     sender,
		Receiver:   receiver,
		Amount:     amount,
		Note:       append([]byte(nil), note...),
		CloseTo:    closeTo,
		FirstValid: params.FirstValid,
		LastValid:  params.LastValid,
		GenesisID:  params.GenesisID,
	}
	unsigned.ID = unsignedTxnID(unsigned)
	f.mu.Lock()
	f.pending[unsigned.ID] = unsigned
	f.mu.Unlock()
	return unsigned, nil
}

func (f *fakeLedgerClient) Sign(ctx context.Context, unsigned UnsignedTxn, senderSK []byte) (SignedTxn, error) {
	return SignedTxn{ID: unsigned.ID, Bytes: unsigned.Note, Fee: 1000, LastValid: unsigned.LastValid}, nil
}

// Submit confirms the pending transaction immediately, standing in for a
// real node's block inclusion; the first failSubmitUntil calls fail
// transiently so retry-policy tests have something to retry past.
func (f *fakeLedgerClient) Submit(ctx context.Context, signed SignedTxn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitAttempts++
	if f.submitAttempts <= f.failSubmitUntil {
		return &SubmitError{Kind: SubmitPoolError, TxID: signed.ID, Message: "simulated transient failure"}
	}
	unsigned, ok := f.pending[signed.ID]
	if !ok {
		return &SubmitError{Kind: SubmitTransient, TxID: signed.ID, Message: "unknown transaction"}
	}
	if f.neverConfirm {
		return nil
	}
	f.round++
	tx := ConfirmedTxn{
		ID:           unsigned.ID,
		Sender:       unsigned.Sender,
		Receiver:     unsigned.Receiver,
		Note:         unsigned.Note,
		CloseTo:      unsigned.CloseTo,
		ConfirmedRnd: f.round,
	}
	f.byID[tx.ID] = tx
	f.order = append(f.order, tx.ID)
	return nil
}

func (f *fakeLedgerClient) WaitForConfirmation(ctx context.Context, signed SignedTxn) (*ConfirmedTxn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.byID[signed.ID]; ok {
		return &tx, nil
	}
	if signed.LastValid > 0 && f.round > signed.LastValid {
		return nil, &SubmitError{Kind: SubmitExpired, TxID: signed.ID, Message: "last-valid round passed before confirmation"}
	}
	return nil, &SubmitError{Kind: SubmitTransient, TxID: signed.ID, Message: "not yet confirmed"}
}

func (f *fakeLedgerClient) LookupByID(ctx context.Context, id string) (*ConfirmedTxn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.byID[id]
	if !ok {
		return nil, errNotFound
	}
	return &tx, nil
}

func (f *fakeLedgerClient) Search(ctx context.Context, filter SearchFilter) (SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []ConfirmedTxn
	for _, id := range f.order {
		t := f.byID[id]
		if filter.Role == RoleReceiver && t.Receiver != filter.Address {
			continue
		}
		if filter.Role == RoleSender && t.Sender != filter.Address {
			continue
		}
		if filter.MinRound > 0 && t.ConfirmedRnd < filter.MinRound {
			continue
		}
		if filter.ExcludeID != "" && t.ID == filter.ExcludeID {
			continue
		}
		matches = append(matches, t)
	}

	start := 0
	if filter.NextToken != "" {
		for i, m := range matches {
			if m.ID == filter.NextToken {
				start = i
				break
			}
		}
	}
	size := f.pageSize
	if size <= 0 || start+size >= len(matches) {
		return SearchPage{Txns: matches[start:]}, nil
	}
	return SearchPage{Txns: matches[start : start+size], NextToken: matches[start+size].ID}, nil
}

func (f *fakeLedgerClient) PageDelay() time.Duration { return time.Millisecond }
