package core

// One-shot blocknote upload. Grounded on the teacher's wallet.go
// transaction-build-sign-submit sequence, generalized from a single
// signed payment into the metadata+chunk+close submission pipeline this
// format requires.

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	retryLimit       = 25
	retryBackoff     = 6 * time.Second
	interSubmitDelay = 50 * time.Millisecond
)

// WriteOptions controls compression, encryption, revision targeting, and
// dry-run behavior for a blocknote upload.
type WriteOptions struct {
	Compression  CodecSelection
	MIME         string
	Title        string
	EncryptTitle *bool // nil means "default true when key/password set"
	AESKey       []byte
	Password     string
	RevisionOf   string

	Simulate bool

	OnProgress func(submitted, total int)
	OnFinish   func(*WriteResult)
	OnError    func(error)
}

// WriteResult summarizes a completed (or simulated) upload.
type WriteResult struct {
	PayloadTransactionID string
	Fees                 uint64
	Compression          string
	Start                time.Time
	End                   time.Time
	Duration             time.Duration
	Simulation           bool
	Payload              []byte
}

// BlocknoteWriter performs one-shot payload uploads.
type BlocknoteWriter struct {
	client   LedgerClient
	search   *Searcher
	registry *registry
	log      *zap.SugaredLogger
}

// NewBlocknoteWriter builds a writer against a LedgerClient. log may be nil.
func NewBlocknoteWriter(client LedgerClient, log *zap.SugaredLogger) *BlocknoteWriter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &BlocknoteWriter{client: client, search: NewSearcher(client, log), registry: DefaultRegistry, log: log}
}

// Write resolves the sender, optionally re-derives the prior revision's
// receiver, encrypts/compresses the payload, submits the metadata and
// chunk transactions (and a close/revision-tag transaction when this is a
// revision), and returns the resulting transaction id and fees.
func (w *BlocknoteWriter) Write(ctx context.Context, senderMnemonic string, rawContent []byte, opts WriteOptions) (result *WriteResult, err error) {
	start := time.Now()
	defer func() {
		if err != nil && opts.OnError != nil {
			opts.OnError(err)
		}
	}()

	// Step 1: resolve sender account from mnemonic.
	wallet, err := WalletFromMnemonic(senderMnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("blocknote write: %w", err)
	}
	senderPriv, senderPub := wallet.RootKeypair()
	senderAddr := pubKeyToAddress(senderPub)

	var originalMeta *Metadata
	var originalReceiver Address
	if opts.RevisionOf != "" {
		// Step 2: look up the original metadata transaction.
		origTx, err := w.client.LookupByID(ctx, opts.RevisionOf)
		if err != nil {
			return nil, fmt.Errorf("blocknote write: revision lookup: %w", err)
		}
		if origTx.Sender != senderAddr {
			return nil, ErrRevisionOwnershipMismatch
		}
		originalMeta, err = ParseMetadata(origTx.Note)
		if err != nil {
			return nil, fmt.Errorf("blocknote write: parse original metadata: %w", err)
		}
		originalReceiver = origTx.Receiver
	}

	// Step 3: choose codec, compress.
	codec, compressed, err := w.registry.Resolve(ctx, opts.Compression, rawContent, false)
	if err != nil {
		return nil, fmt.Errorf("blocknote write: %w", err)
	}

	// Step 4: derive a fresh receiver account.
	accid, addid, err := RandomIndices()
	if err != nil {
		return nil, fmt.Errorf("blocknote write: %w", err)
	}
	_, receiverPub, err := wallet.PrivateKey(accid, addid)
	if err != nil {
		return nil, fmt.Errorf("blocknote write: %w", err)
	}
	receiverAddr := pubKeyToAddress(receiverPub)

	// Step 5: build metadata skeleton.
	meta := &Metadata{
		Version: MetadataVersion,
		MIME:    opts.MIME,
		Size:    int64(len(rawContent)),
		AddID:   addid,
		AccID:   accid,
	}
	if codec.Name() != "none" {
		meta.Compression = codec.Name()
	}
	if err := meta.SetPlainTitle(opts.Title); err != nil {
		return nil, fmt.Errorf("blocknote write: %w", err)
	}

	content := compressed
	encryptTitle := opts.EncryptTitle == nil || *opts.EncryptTitle
	hasKeyMaterial := len(opts.AESKey) > 0 || opts.Password != ""

	// Step 6: derive/apply encryption.
	if hasKeyMaterial {
		key := opts.AESKey
		if opts.Password != "" {
			salt, err := NewSalt()
			if err != nil {
				return nil, fmt.Errorf("blocknote write: %w", err)
			}
			key = DeriveKey(opts.Password, salt)
			meta.Salt = b64(salt)
		}
		if len(key) > 0 {
			enc, err := Encrypt(key, content)
			if err != nil {
				return nil, fmt.Errorf("blocknote write: %w", err)
			}
			ct, tag := splitTag(enc.Ciphertext)
			content = ct
			meta.IV = b64(enc.Nonce[:])
			meta.Tag = b64(tag)
			if encryptTitle {
				titleEnc, err := Encrypt(key, []byte(opts.Title))
				if err != nil {
					return nil, fmt.Errorf("blocknote write: encrypt title: %w", err)
				}
				titleCT, titleTag := splitTag(titleEnc.Ciphertext)
				if err := meta.SetEncryptedTitle(EncryptedTitle{
					IV:   b64(titleEnc.Nonce[:]),
					Tag:  b64(titleTag),
					Data: b64(titleCT),
				}); err != nil {
					return nil, fmt.Errorf("blocknote write: %w", err)
				}
			}
		}
	}

	// Step 7: chunk into data records.
	chunks := chunkBytes(content, maxChunkPayload())
	meta.Txns = len(chunks)

	metaNote, err := meta.MarshalNote()
	if err != nil {
		return nil, err
	}

	suggested, err := w.client.SuggestedParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("blocknote write: %w", err)
	}

	var fees uint64
	var payloadID string

	submitOne := func(receiver Address, note []byte, closeTo *Address) (string, error) {
		id, fee, err := w.submitWithRetry(ctx, senderAddr, receiver, senderPriv, note, closeTo, &suggested)
		fees += fee
		return id, err
	}

	if opts.Simulate {
		// Accumulate fees from minFee without touching the network.
		fees += suggested.MinFee
		for range chunks {
			fees += suggested.MinFee
		}
	} else {
		// Step 9: metadata first.
		payloadID, err = submitOne(receiverAddr, metaNote, nil)
		if err != nil {
			return nil, err
		}
		if opts.OnProgress != nil {
			opts.OnProgress(0, len(chunks)+1)
		}
		for i, chunk := range chunks {
			isLast := i == len(chunks)-1
			note := EncodeDataRecord(uint32(i), chunk)
			var closeTo *Address
			if isLast {
				closeTo = &senderAddr
			}
			if _, err := submitOne(receiverAddr, note, closeTo); err != nil {
				return nil, err
			}
			if opts.OnProgress != nil {
				opts.OnProgress(i+1, len(chunks)+1)
			}
		}
	}

	// Step 10: revision bookkeeping.
	if opts.RevisionOf != "" && !opts.Simulate {
		// Re-derive the original receiver by HD path from the original
		// metadata's (accid, addid) rather than trusting the fetched
		// transaction's receiver field.
		originalReceiverSK, derivedOriginalReceiver, err := receiverFromMetadata(wallet, originalMeta)
		if err != nil {
			return nil, err
		}
		if derivedOriginalReceiver != originalReceiver {
			return nil, ErrRevisionOwnershipMismatch
		}
		revNote, err := MarshalRevisionNote(payloadID)
		if err != nil {
			return nil, err
		}
		if _, err := submitOne(originalReceiver, revNote, nil); err != nil {
			return nil, err
		}
		// Close-remainder transaction: the tag account itself must be the
		// sender to close its own balance, here back to the session
		// sender.
		_, closeFee, err := w.submitWithRetry(ctx, originalReceiver, originalReceiver, originalReceiverSK, []byte{}, &senderAddr, &suggested)
		if err != nil {
			return nil, err
		}
		fees += closeFee
	}

	end := time.Now()
	result = &WriteResult{
		PayloadTransactionID: payloadID,
		Fees:                 fees,
		Compression:          codec.Name(),
		Start:                start,
		End:                  end,
		Duration:             end.Sub(start),
		Simulation:           opts.Simulate,
		Payload:              rawContent,
	}
	if opts.Simulate {
		result.PayloadTransactionID = ""
	}
	if opts.OnFinish != nil {
		opts.OnFinish(result)
	}
	return result, nil
}

// receiverFromMetadata re-derives a receiver keypair from a previously
// fetched metadata's (accid, addid), used to locate where a revision tag
// must be posted and, since closing an account requires that account to
// be the transaction's own sender, to sign its self-close.
func receiverFromMetadata(wallet *HDWallet, meta *Metadata) (ed25519.PrivateKey, Address, error) {
	priv, pub, err := wallet.PrivateKey(meta.AccID, meta.AddID)
	if err != nil {
		return nil, Address{}, err
	}
	return priv, pubKeyToAddress(pub), nil
}

// chunkBytes splits data into records of up to maxPayload bytes each (the
// counter prefix is added by the caller at submit time via
// EncodeDataRecord, so chunkBytes itself only slices plaintext/ciphertext).
func chunkBytes(data []byte, maxPayload int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for off := 0; off < len(data); off += maxPayload {
		end := off + maxPayload
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end])
	}
	return out
}

// submitWithRetry implements the writer's retry policy: retry on any error
// other than "already in ledger" (treated as success) or SubmitExpired
// (terminal, since a fresh submission is needed instead); after retryLimit
// consecutive attempts, rebuild with fresh suggested params and reset the
// counter; sleep retryBackoff between rounds, interSubmitDelay between
// individual submissions.
func (w *BlocknoteWriter) submitWithRetry(ctx context.Context, sender, receiver Address, senderSK []byte, note []byte, closeTo *Address, params *SuggestedParams) (id string, fee uint64, err error) {
	attempts := 0
	for {
		unsigned, err := w.client.BuildPayment(ctx, *params, sender, receiver, 0, note, closeTo)
		if err != nil {
			return "", 0, fmt.Errorf("blocknote write: build payment: %w", err)
		}
		signed, err := w.client.Sign(ctx, unsigned, senderSK)
		if err != nil {
			return "", 0, fmt.Errorf("blocknote write: sign: %w", err)
		}
		submitErr := w.client.Submit(ctx, signed)
		if submitErr == nil {
			confirmed, werr := w.client.WaitForConfirmation(ctx, signed)
			if werr == nil {
				return confirmed.ID, signed.Fee, nil
			}
			submitErr = werr
		}

		if se, ok := submitErr.(*SubmitError); ok {
			if se.Kind == SubmitExpired {
				return "", 0, se
			}
			if isAlreadyInLedger(se.Message) {
				return se.TxID, signed.Fee, nil
			}
		}

		attempts++
		w.log.Debugw("blocknote write: submission failed, retrying", "attempt", attempts, "error", submitErr)
		if attempts >= retryLimit {
			fresh, perr := w.client.SuggestedParams(ctx)
			if perr != nil {
				return "", 0, fmt.Errorf("blocknote write: refresh params: %w", perr)
			}
			*params = fresh
			attempts = 0
			if err := sleepCtx(ctx, retryBackoff); err != nil {
				return "", 0, err
			}
			continue
		}
		if err := sleepCtx(ctx, interSubmitDelay); err != nil {
			return "", 0, err
		}
	}
}
