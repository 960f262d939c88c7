package core

// Higher-level ledger queries built only on LedgerClient: finding received
// payload/data/revision/stop transactions for a (sender, receiver) pair,
// the most recent one, and walking a revision chain to its tip. Grounded
// on the teacher's search-by-address helpers in wallet.go, generalized
// from "find balance" to "find notes".

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReceivedTxn is one payment found by a search, carrying the raw
// confirmed transaction; callers decode its note themselves
// (DecodeDataRecord, ParseRevisionNote, IsStopNote).
type ReceivedTxn struct {
	ConfirmedTxn
}

// Searcher composes LedgerClient into the query shapes the reader/writer
// pipelines need.
type Searcher struct {
	client LedgerClient
	log    *zap.SugaredLogger
}

// NewSearcher builds a Searcher. log may be nil, in which case a no-op
// logger is used.
func NewSearcher(client LedgerClient, log *zap.SugaredLogger) *Searcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Searcher{client: client, log: log}
}

// AllReceived returns every confirmed payment from sender to receiver,
// optionally excluding one transaction id (the payload transaction itself,
// when searching for its data/revision children), walking all indexer
// pages and sleeping PageDelay between pages to stay under rate limits.
func (s *Searcher) AllReceived(ctx context.Context, sender, receiver Address, excludeID string, minRound uint64) ([]ReceivedTxn, error) {
	return s.allReceivedFromEither(ctx, receiver, excludeID, minRound, sender)
}

// allReceivedFromEither is AllReceived generalized to accept more than one
// valid sender address, used by the blocknote reader's filter "sender is
// the payload sender or the payload receiver (the close transaction is
// self-sent)".
func (s *Searcher) allReceivedFromEither(ctx context.Context, receiver Address, excludeID string, minRound uint64, senders ...Address) ([]ReceivedTxn, error) {
	allowed := make(map[Address]bool, len(senders))
	for _, a := range senders {
		allowed[a] = true
	}
	var out []ReceivedTxn
	next := ""
	for {
		page, err := s.client.Search(ctx, SearchFilter{
			Address:   receiver,
			Role:      RoleReceiver,
			TxType:    "pay",
			MinRound:  minRound,
			ExcludeID: excludeID,
			NextToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("search received: %w", err)
		}
		for _, t := range page.Txns {
			if !allowed[t.Sender] {
				continue
			}
			if excludeID != "" && t.ID == excludeID {
				continue
			}
			out = append(out, ReceivedTxn{t})
		}
		if page.NextToken == "" || page.NextToken == next {
			break
		}
		next = page.NextToken
		s.log.Debugw("search: fetching next page", "receiver", receiver.String())
		if err := sleepCtx(ctx, s.client.PageDelay()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LastReceived returns the single most recent payment from sender to
// receiver, or nil if none exists.
func (s *Searcher) LastReceived(ctx context.Context, sender, receiver Address, minRound uint64) (*ReceivedTxn, error) {
	txns, err := s.AllReceived(ctx, sender, receiver, "", minRound)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	last := txns[0]
	for _, t := range txns[1:] {
		if t.ConfirmedRnd > last.ConfirmedRnd {
			last = t
		}
	}
	return &last, nil
}

// FollowRevisionChain looks for revision-tag notes posted from sender to
// receiver and returns the payload id named by the last one in search
// order with hops = 1, or payloadID with hops = 0 when there is none. It
// queries only this (sender, receiver) pair: tags posted at the named
// payload's own receiver are not followed here, so reaching the tip of a
// longer chain takes one call per hop (as BlocknoteReader does).
func (s *Searcher) FollowRevisionChain(ctx context.Context, sender, receiver Address, payloadID string, minRound uint64) (finalID string, hops int, err error) {
	finalID = payloadID
	for {
		txns, err := s.AllReceived(ctx, sender, receiver, "", minRound)
		if err != nil {
			return "", hops, err
		}
		var next string
		for _, t := range txns {
			rev, ok := ParseRevisionNote(t.Note)
			if !ok {
				continue
			}
			next = rev
		}
		if next == "" || next == finalID {
			return finalID, hops, nil
		}
		finalID = next
		hops++
	}
}

// ByAddress returns every confirmed payment where address plays the given
// role, paginating with PageDelay between pages. Used by the upload
// manager's APP_NAME-prefixed bootstrap-note scans, which cannot
// pre-filter by a known counterparty the way AllReceived can.
func (s *Searcher) ByAddress(ctx context.Context, address Address, role AddressRole, minRound uint64) ([]ReceivedTxn, error) {
	var out []ReceivedTxn
	next := ""
	for {
		page, err := s.client.Search(ctx, SearchFilter{
			Address:   address,
			Role:      role,
			TxType:    "pay",
			MinRound:  minRound,
			NextToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("search by address: %w", err)
		}
		for _, t := range page.Txns {
			out = append(out, ReceivedTxn{t})
		}
		if page.NextToken == "" || page.NextToken == next {
			break
		}
		next = page.NextToken
		if err := sleepCtx(ctx, s.client.PageDelay()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// IsStopNote reports whether note is the literal stop marker, comparing
// raw bytes rather than strings so a JSON-escaped lookalike can never
// match.
func IsStopNote(note []byte) bool {
	return bytes.Equal(note, []byte("stop"))
}

// sleepCtx sleeps d or returns early with ctx.Err() if ctx is cancelled
// first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
