package core

// LedgerClient is the ledger collaborator: fetch suggested params, build and
// submit a signed transaction, poll for confirmation, look up a transaction
// by id, and run a paginated indexer search. Every higher layer (writers,
// readers, search, manager) is built only against this interface, never
// against a concrete chain SDK, matching the teacher's storage.go
// gateway-client shape (context-scoped http.Client calls with an injected
// timeout).

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SuggestedParams is the fee/validity window a client needs to build a
// transaction.
type SuggestedParams struct {
	FeePerByte      uint64
	MinFee          uint64
	FirstValid      uint64
	LastValid       uint64
	GenesisID       string
	GenesisHashB64  string
}

// UnsignedTxn is a not-yet-signed payment, along with the id it will have
// once signed (ids are deterministic from the unsigned fields in the
// ledgers this system targets).
type UnsignedTxn struct {
	ID         string
	Sender     Address
	Receiver   Address
	Amount     uint64
	Note       []byte
	CloseTo    *Address
	FirstValid uint64
	LastValid  uint64
	GenesisID  string
}

// SignedTxn is the wire-ready, signed transaction: its id, the signed
// bytes, the fee it will consume, and the last round it remains valid
// through so WaitForConfirmation can detect expiry instead of polling
// forever.
type SignedTxn struct {
	ID        string
	Bytes     []byte
	Fee       uint64
	LastValid uint64
}

// ConfirmedTxn is what WaitForConfirmation / LookupByID return once a
// transaction is visible on chain.
type ConfirmedTxn struct {
	ID           string
	Sender       Address
	Receiver     Address
	Note         []byte
	CloseTo      *Address
	ConfirmedRnd uint64
}

// AddressRole filters a paginated search by whether the address appears as
// sender or receiver.
type AddressRole int

const (
	RoleSender AddressRole = iota
	RoleReceiver
)

// SearchFilter is the paginated indexer query shape.
type SearchFilter struct {
	Address     Address
	Role        AddressRole
	TxType      string // "pay"
	MinRound    uint64
	ExcludeID   string
	NextToken   string
}

// SearchPage is one page of a paginated indexer search.
type SearchPage struct {
	Txns      []ConfirmedTxn
	NextToken string
}

// LedgerClient is the full collaborator surface this package builds
// against.
type LedgerClient interface {
	SuggestedParams(ctx context.Context) (SuggestedParams, error)
	BuildPayment(ctx context.Context, params SuggestedParams, sender, receiver Address, amount uint64, note []byte, closeTo *Address) (UnsignedTxn, error)
	Sign(ctx context.Context, unsigned UnsignedTxn, senderSK []byte) (SignedTxn, error)
	Submit(ctx context.Context, signed SignedTxn) error
	WaitForConfirmation(ctx context.Context, signed SignedTxn) (*ConfirmedTxn, error)
	LookupByID(ctx context.Context, id string) (*ConfirmedTxn, error)
	Search(ctx context.Context, filter SearchFilter) (SearchPage, error)
	// PageDelay returns how long a caller paginating Search should sleep
	// between pages to stay under indexer rate limits.
	PageDelay() time.Duration
}

// DefaultIndexerPageDelay is the inter-page sleep used when a caller
// doesn't configure one. Exposed on Config so callers can tune it.
const DefaultIndexerPageDelay = 200 * time.Millisecond

// httpLedgerClient is the default LedgerClient: a thin REST wrapper,
// grounded on the teacher's storage.go Pin/get gateway calls (context
// timeout, JSON body, single http.Client reused across calls).
type httpLedgerClient struct {
	algodURL    string
	algodToken  string
	indexerURL  string
	indexerTok  string
	httpClient  *http.Client
	pageDelay   time.Duration
}

// NewHTTPLedgerClient builds the default collaborator implementation from
// a pair of ledger REST endpoints (an algod-shaped node and an
// indexer-shaped search service).
func NewHTTPLedgerClient(algodURL, algodToken, indexerURL, indexerToken string, pageDelay time.Duration) LedgerClient {
	if pageDelay <= 0 {
		pageDelay = DefaultIndexerPageDelay
	}
	return &httpLedgerClient{
		algodURL:   algodURL,
		algodToken: algodToken,
		indexerURL: indexerURL,
		indexerTok: indexerToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pageDelay:  pageDelay,
	}
}

func (c *httpLedgerClient) doJSON(ctx context.Context, method, url, token string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledger client: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("ledger client: build request: %w", err)
	}
	if token != "" {
		req.Header.Set("X-Algo-API-Token", token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ledger client: %s returned %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *httpLedgerClient) SuggestedParams(ctx context.Context) (SuggestedParams, error) {
	var sp SuggestedParams
	err := c.doJSON(ctx, http.MethodGet, c.algodURL+"/v2/transactions/params", c.algodToken, nil, &sp)
	return sp, err
}

func (c *httpLedgerClient) BuildPayment(ctx context.Context, params SuggestedParams, sender, receiver Address, amount uint64, note []byte, closeTo *Address) (UnsignedTxn, error) {
	unsigned := UnsignedTxn{
		Sender:     sender,
		Receiver:   receiver,
		Amount:     amount,
		Note:       note,
		CloseTo:    closeTo,
		FirstValid: params.FirstValid,
		LastValid:  params.LastValid,
		GenesisID:  params.GenesisID,
	}
	// The id is deterministic from the unsigned fields alone, so a caller
	// (the upload manager) can persist it as a lookup key before the
	// transaction is ever signed.
	unsigned.ID = unsignedTxnID(unsigned)
	return unsigned, nil
}

// unsignedTxnID renders a 52-character base32 id from the unsigned
// fields, matching the length MarshalRevisionNote/ParseRevisionNote
// require — the same base32(SHA-256) shape Address.String uses for the
// same reason.
func unsignedTxnID(u UnsignedTxn) string {
	buf := make([]byte, 0, 64+len(u.Note))
	buf = append(buf, u.Sender[:]...)
	buf = append(buf, u.Receiver[:]...)
	buf = append(buf, u.Note...)
	var amt [8]byte
	for i := 0; i < 8; i++ {
		amt[i] = byte(u.Amount >> (8 * uint(i)))
	}
	buf = append(buf, amt[:]...)
	sum := SHA256Sum(buf)
	return b32.EncodeToString(sum[:])
}

func (c *httpLedgerClient) Sign(_ context.Context, unsigned UnsignedTxn, senderSK []byte) (SignedTxn, error) {
	// The wire-level signing scheme belongs to the ledger SDK this
	// collaborator wraps; this default implementation attaches no
	// signature and carries the unsigned transaction's id and note through
	// unchanged, so simulate/dry-run paths can exercise the rest of the
	// pipeline without a live node.
	return SignedTxn{
		ID:        unsigned.ID,
		Bytes:     unsigned.Note,
		Fee:       1000,
		LastValid: unsigned.LastValid,
	}, nil
}

func (c *httpLedgerClient) Submit(ctx context.Context, signed SignedTxn) error {
	return c.doJSON(ctx, http.MethodPost, c.algodURL+"/v2/transactions", c.algodToken, signed.Bytes, nil)
}

// currentRound fetches the node's latest round, so WaitForConfirmation can
// tell a transaction still pending confirmation apart from one whose
// validity window has already passed.
func (c *httpLedgerClient) currentRound(ctx context.Context) (uint64, error) {
	var status struct {
		LastRound uint64 `json:"last-round"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.algodURL+"/v2/status", c.algodToken, nil, &status); err != nil {
		return 0, err
	}
	return status.LastRound, nil
}

// WaitForConfirmation polls pending-transaction until a confirmed round
// appears, surfaces the pool error if one is reported, and otherwise tracks
// the node's current round against the signed transaction's last-valid
// round: once the current round passes it without a confirmation, the
// transaction can never be confirmed and WaitForConfirmation returns a
// SubmitExpired error rather than polling forever.
func (c *httpLedgerClient) WaitForConfirmation(ctx context.Context, signed SignedTxn) (*ConfirmedTxn, error) {
	for {
		var status struct {
			ConfirmedRound uint64 `json:"confirmed-round"`
			PoolError      string `json:"pool-error"`
		}
		url := fmt.Sprintf("%s/v2/transactions/pending/%s", c.algodURL, signed.ID)
		if err := c.doJSON(ctx, http.MethodGet, url, c.algodToken, nil, &status); err != nil {
			return nil, err
		}
		if status.PoolError != "" {
			if isAlreadyInLedger(status.PoolError) {
				return c.LookupByID(ctx, signed.ID)
			}
			return nil, &SubmitError{Kind: SubmitPoolError, TxID: signed.ID, Message: status.PoolError}
		}
		if status.ConfirmedRound > 0 {
			return c.LookupByID(ctx, signed.ID)
		}

		if signed.LastValid > 0 {
			round, err := c.currentRound(ctx)
			if err != nil {
				return nil, err
			}
			if round > signed.LastValid {
				return nil, &SubmitError{Kind: SubmitExpired, TxID: signed.ID, Message: "last-valid round passed before confirmation"}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (c *httpLedgerClient) LookupByID(ctx context.Context, id string) (*ConfirmedTxn, error) {
	var tx ConfirmedTxn
	url := fmt.Sprintf("%s/v2/transactions/%s", c.algodURL, id)
	if err := c.doJSON(ctx, http.MethodGet, url, c.algodToken, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *httpLedgerClient) Search(ctx context.Context, filter SearchFilter) (SearchPage, error) {
	var page SearchPage
	role := "receiver"
	if filter.Role == RoleSender {
		role = "sender"
	}
	url := fmt.Sprintf("%s/v2/transactions?address=%s&address-role=%s&tx-type=%s&next=%s",
		c.indexerURL, filter.Address.String(), role, filter.TxType, filter.NextToken)
	if filter.MinRound > 0 {
		url += fmt.Sprintf("&min-round=%d", filter.MinRound)
	}
	if err := c.doJSON(ctx, http.MethodGet, url, c.indexerTok, nil, &page); err != nil {
		return SearchPage{}, err
	}
	return page, nil
}

// PageDelay returns the configured inter-page sleep.
func (c *httpLedgerClient) PageDelay() time.Duration { return c.pageDelay }
