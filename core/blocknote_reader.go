package core

// One-shot blocknote read: resolve the requested revision, collect the
// chunk transactions at the receiver, and reassemble the original bytes.

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ReadOptions controls how a blocknote read resolves and decodes content.
type ReadOptions struct {
	AESKey    []byte
	Password  string
	Revision  int // 1-based; 0 means "most recent"
	ReturnRaw bool
}

// ReadResult bundles the decoded metadata and reconstructed bytes.
type ReadResult struct {
	Payload *Metadata
	Content []byte
}

// BlocknoteReader performs one-shot payload reads.
type BlocknoteReader struct {
	client LedgerClient
	search *Searcher
	log    *zap.SugaredLogger
}

// NewBlocknoteReader builds a reader against a LedgerClient. log may be nil.
func NewBlocknoteReader(client LedgerClient, log *zap.SugaredLogger) *BlocknoteReader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &BlocknoteReader{client: client, search: NewSearcher(client, log), log: log}
}

// Read resolves payloadID to its requested revision, fetches every chunk
// transaction sent to that revision's receiver, reassembles them by
// counter offset, and decompresses/decrypts the result.
func (r *BlocknoteReader) Read(ctx context.Context, payloadID string, opts ReadOptions) (*ReadResult, error) {
	// Step 1: fetch the metadata transaction and resolve revisions.
	resolvedID, meta, err := r.resolveRevision(ctx, payloadID, opts.Revision)
	if err != nil {
		return nil, err
	}

	// Step 2-3: collect received payment transactions at the receiver,
	// filtered and truncated to the first txns in chronological order.
	metaTx, err := r.client.LookupByID(ctx, resolvedID)
	if err != nil {
		return nil, fmt.Errorf("blocknote read: %w", err)
	}
	received, err := r.search.allReceivedFromEither(ctx, metaTx.Receiver, resolvedID, 0, metaTx.Sender, metaTx.Receiver)
	if err != nil {
		return nil, fmt.Errorf("blocknote read: %w", err)
	}
	sort.Slice(received, func(i, j int) bool { return received[i].ConfirmedRnd < received[j].ConfirmedRnd })
	if len(received) > meta.Txns {
		received = received[:meta.Txns]
	}

	// Step 4: concatenate by counter.
	content, err := assembleByCounter(received)
	if err != nil {
		return nil, fmt.Errorf("blocknote read: %w", err)
	}

	if opts.ReturnRaw {
		return &ReadResult{Payload: meta, Content: content}, nil
	}

	var key []byte
	if meta.IV != "" {
		// Step 5: decrypt.
		if meta.Salt != "" {
			if opts.Password == "" {
				return nil, ErrMissingPassword
			}
			salt, err := unb64(meta.Salt)
			if err != nil {
				return nil, fmt.Errorf("blocknote read: %w", err)
			}
			key = DeriveKey(opts.Password, salt)
		} else {
			if len(opts.AESKey) == 0 {
				return nil, ErrMissingKey
			}
			key = opts.AESKey
		}
		nonce, err := unb64(meta.IV)
		if err != nil {
			return nil, fmt.Errorf("blocknote read: %w", err)
		}
		tag, err := unb64(meta.Tag)
		if err != nil {
			return nil, fmt.Errorf("blocknote read: %w", err)
		}
		var nonceArr [gcmNonceSize]byte
		copy(nonceArr[:], nonce)
		content, err = Decrypt(key, nonceArr, joinTag(content, tag))
		if err != nil {
			return nil, err
		}
	}

	// Step 6: decompress.
	if meta.Compression != "" {
		codec, err := DefaultRegistry.get(meta.Compression)
		if err != nil {
			return nil, fmt.Errorf("blocknote read: %w", err)
		}
		content, err = codec.Uncompress(ctx, content)
		if err != nil {
			return nil, err
		}
	}

	// Step 7: decrypt title if it is an object.
	if titleObj, ok := meta.EncryptedTitleValue(); ok && len(key) > 0 {
		iv, err := unb64(titleObj.IV)
		if err != nil {
			return nil, fmt.Errorf("blocknote read: title: %w", err)
		}
		tag, err := unb64(titleObj.Tag)
		if err != nil {
			return nil, fmt.Errorf("blocknote read: title: %w", err)
		}
		data, err := unb64(titleObj.Data)
		if err != nil {
			return nil, fmt.Errorf("blocknote read: title: %w", err)
		}
		var ivArr [gcmNonceSize]byte
		copy(ivArr[:], iv)
		plainTitle, err := Decrypt(key, ivArr, joinTag(data, tag))
		if err != nil {
			return nil, fmt.Errorf("blocknote read: title: %w", err)
		}
		if err := meta.SetPlainTitle(string(plainTitle)); err != nil {
			return nil, err
		}
	}

	return &ReadResult{Payload: meta, Content: content}, nil
}

// resolveRevision walks the revision-tag chain starting at payloadID: a
// requested 1-based revision index walks the chain to that hop; no index
// requested means follow the last revision-tag, if any.
func (r *BlocknoteReader) resolveRevision(ctx context.Context, payloadID string, revision int) (resolvedID string, meta *Metadata, err error) {
	metaTx, err := r.client.LookupByID(ctx, payloadID)
	if err != nil {
		return "", nil, fmt.Errorf("blocknote read: fetch metadata: %w", err)
	}
	meta, err = ParseMetadata(metaTx.Note)
	if err != nil {
		return "", nil, fmt.Errorf("blocknote read: %w", err)
	}

	chain := []string{payloadID}
	cur := payloadID
	curSender, curReceiver := metaTx.Sender, metaTx.Receiver
	for {
		finalID, hops, err := r.search.FollowRevisionChain(ctx, curSender, curReceiver, cur, 0)
		if err != nil {
			return "", nil, err
		}
		if hops == 0 {
			break
		}
		chain = append(chain, finalID)
		cur = finalID
		nextTx, err := r.client.LookupByID(ctx, cur)
		if err != nil {
			return "", nil, err
		}
		curSender, curReceiver = nextTx.Sender, nextTx.Receiver
	}

	if revision > 0 {
		if revision > len(chain) {
			return "", nil, ErrInvalidRevisionNumber
		}
		resolvedID = chain[revision-1]
	} else {
		resolvedID = chain[len(chain)-1]
	}

	if resolvedID != payloadID {
		tx, err := r.client.LookupByID(ctx, resolvedID)
		if err != nil {
			return "", nil, fmt.Errorf("blocknote read: %w", err)
		}
		meta, err = ParseMetadata(tx.Note)
		if err != nil {
			return "", nil, fmt.Errorf("blocknote read: %w", err)
		}
	}
	return resolvedID, meta, nil
}

// assembleByCounter places each transaction's note[4:] at its decoded
// counter offset, producing a single contiguous buffer.
func assembleByCounter(txns []ReceivedTxn) ([]byte, error) {
	type piece struct {
		counter uint32
		data    []byte
	}
	pieces := make([]piece, 0, len(txns))
	var total int
	for _, t := range txns {
		counter, chunk, err := DecodeDataRecord(t.Note)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, piece{counter: counter, data: chunk})
		total += len(chunk)
	}
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].counter < pieces[j].counter })
	out := make([]byte, 0, total)
	for _, p := range pieces {
		out = append(out, p.data...)
	}
	return out, nil
}
