package core

// Incremental streamnote read: historical replay followed by continuous
// polling, with gap-aware in-order emission to a consumer callback and
// stop-note detection.

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const streamPollInterval = 3 * time.Second

// StreamReadOptions mirrors ReadOptions for the streaming path.
type StreamReadOptions struct {
	AESKey   []byte
	Password string
}

// StreamnoteReader replays and then tails a streamnote session, emitting
// decoded chunks in strict counter order via OnData.
type StreamnoteReader struct {
	client LedgerClient
	search *Searcher
	log    *zap.SugaredLogger

	sender   Address
	receiver Address
	meta     *Metadata
	key      []byte
	seed     []byte

	held         map[uint32][]byte
	seekPointer  uint32
	youngestSeen uint64

	OnData func(chunk []byte)
}

// NewStreamnoteReader builds a reader against a LedgerClient. log may be nil.
func NewStreamnoteReader(client LedgerClient, log *zap.SugaredLogger) *StreamnoteReader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StreamnoteReader{
		client: client,
		search: NewSearcher(client, log),
		log:    log,
		held:   make(map[uint32][]byte),
	}
}

// Open fetches the metadata transaction and resolves encryption material.
func (r *StreamnoteReader) Open(ctx context.Context, payloadID string, opts StreamReadOptions) error {
	metaTx, err := r.client.LookupByID(ctx, payloadID)
	if err != nil {
		return fmt.Errorf("streamnote read: %w", err)
	}
	meta, err := ParseMetadata(metaTx.Note)
	if err != nil {
		return fmt.Errorf("streamnote read: %w", err)
	}
	r.meta = meta
	r.sender = metaTx.Sender
	r.receiver = metaTx.Receiver

	if meta.Salt != "" {
		if opts.Password == "" {
			return ErrMissingPassword
		}
		salt, err := unb64(meta.Salt)
		if err != nil {
			return fmt.Errorf("streamnote read: %w", err)
		}
		r.key = DeriveKey(opts.Password, salt)
		r.seed = salt
	} else if meta.IV != "" {
		if len(opts.AESKey) == 0 {
			return ErrMissingKey
		}
		iv, err := unb64(meta.IV)
		if err != nil {
			return fmt.Errorf("streamnote read: %w", err)
		}
		r.key = opts.AESKey
		r.seed = iv
	}
	return nil
}

// GetPreviousData pages all history, decodes every chunk, and consolidates
// whatever prefix is contiguous from counter 0.
func (r *StreamnoteReader) GetPreviousData(ctx context.Context) error {
	txns, err := r.search.AllReceived(ctx, r.sender, r.receiver, "", 0)
	if err != nil {
		return fmt.Errorf("streamnote read: %w", err)
	}
	return r.foldIn(ctx, txns)
}

// Start, if no history was loaded, polls until at least one transaction
// exists, then enters the continuous polling loop until a stop note is
// found. Blocks until the session ends or ctx is cancelled.
func (r *StreamnoteReader) Start(ctx context.Context) error {
	if len(r.held) == 0 && r.seekPointer == 0 {
		for len(r.held) == 0 {
			if err := sleepCtx(ctx, streamPollInterval); err != nil {
				return err
			}
			if err := r.GetPreviousData(ctx); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			minRound := uint64(0)
			if r.youngestSeen > 10 {
				minRound = r.youngestSeen - 10
			}
			txns, err := r.search.AllReceived(ctx, r.sender, r.receiver, "", minRound)
			if err != nil {
				return err
			}
			heldBefore, seekBefore := len(r.held), r.seekPointer
			if err := r.foldIn(ctx, txns); err != nil {
				return err
			}
			if len(r.held) == heldBefore && r.seekPointer == seekBefore {
				stopped, err := r.probeStop(ctx)
				if err != nil {
					return err
				}
				if stopped {
					return r.consolidate()
				}
			}
		}
	}
}

// foldIn decodes each transaction's note and inserts it into the held map
// keyed by counter, then consolidates.
func (r *StreamnoteReader) foldIn(ctx context.Context, txns []ReceivedTxn) error {
	sort.Slice(txns, func(i, j int) bool { return txns[i].ConfirmedRnd < txns[j].ConfirmedRnd })
	for _, t := range txns {
		if IsStopNote(t.Note) {
			continue
		}
		if t.ConfirmedRnd > r.youngestSeen {
			r.youngestSeen = t.ConfirmedRnd
		}
		counter, raw, err := DecodeDataRecord(t.Note)
		if err != nil {
			return err
		}
		if counter < r.seekPointer {
			continue // already emitted
		}
		if _, exists := r.held[counter]; exists {
			continue
		}
		chunk, err := r.decode(ctx, raw, counter)
		if err != nil {
			return err
		}
		r.held[counter] = chunk
	}
	return r.consolidate()
}

// decode reverses a data record's stream-cipher and compression layers.
func (r *StreamnoteReader) decode(ctx context.Context, raw []byte, counter uint32) ([]byte, error) {
	content := raw
	if len(r.key) > 0 {
		plain, err := DecryptWithDerivation(r.key, r.seed, content, counter)
		if err != nil {
			return nil, err
		}
		content = plain
	}
	if r.meta.Compression != "" {
		codec, err := DefaultRegistry.get(r.meta.Compression)
		if err != nil {
			return nil, err
		}
		out, err := codec.Uncompress(ctx, content)
		if err != nil {
			return nil, err
		}
		content = out
	}
	return content, nil
}

// consolidate emits contiguous chunks from the seek pointer forward,
// pruning emitted entries. Gaps halt emission.
func (r *StreamnoteReader) consolidate() error {
	for {
		chunk, ok := r.held[r.seekPointer]
		if !ok {
			return nil
		}
		if r.OnData != nil {
			r.OnData(chunk)
		}
		delete(r.held, r.seekPointer)
		r.seekPointer++
	}
}

// probeStop looks for a transaction sent by the receiver to itself whose
// note is the literal stop marker.
func (r *StreamnoteReader) probeStop(ctx context.Context) (bool, error) {
	txns, err := r.search.AllReceived(ctx, r.receiver, r.receiver, "", 0)
	if err != nil {
		return false, err
	}
	for _, t := range txns {
		if IsStopNote(t.Note) {
			return true, nil
		}
	}
	return false, nil
}
