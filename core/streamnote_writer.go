package core

// Incremental streamnote upload: a rolling buffer, adaptive padding, and a
// stall-timeout state machine with no analogue in the teacher's one-shot
// wallet.go transfers, so its shape is new; its concurrency primitives
// (mutex-guarded queue, ticker-driven loops) follow the teacher's idiom for
// background workers seen in core/replication.go's snapshot ticker.

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	processorTick                = 100 * time.Millisecond
	submitterTick                = 1 * time.Second
	paddingStep                  = 50
	paddingSearchDelay           = 10 * time.Millisecond
	noteMaxSizeNotReachedTimeout = 15 * time.Second
)

// StreamWriteOptions mirrors WriteOptions for the subset that applies to a
// streaming session.
type StreamWriteOptions struct {
	Compression  CodecSelection
	MIME         string
	Title        string
	EncryptTitle *bool
	AESKey       []byte
	Password     string

	OnProgress func(chunksSent int)
	OnFinish   func(*WriteResult)
	OnError    func(error)
}

// streamPadding is the adaptive-padding/stall-detection state: the current
// padding amount, the hash of the last candidate built, and when that hash
// was first seen.
type streamPadding struct {
	padding     int
	lastHash    [32]byte
	hasLastHash bool
	tsSameHash  time.Time
}

// StreamnoteWriter runs the save loop: a processor that speculatively
// chunks the rolling buffer and a submitter that flushes the resulting
// queue to the ledger.
type StreamnoteWriter struct {
	client LedgerClient
	log    *zap.SugaredLogger

	mu            sync.Mutex
	content       []byte
	counter       uint32
	pad           streamPadding
	stopRequested bool
	isFinalized   bool

	queueMu sync.Mutex
	queue   [][]byte

	codec Codec
	key   []byte
	seed  []byte

	senderAddr   Address
	senderSK     []byte
	receiverAddr Address
	receiverSK   []byte
	payloadID    string
	params       SuggestedParams

	opts StreamWriteOptions

	fees      uint64
	chunkSent int

	done    chan struct{}
	errOnce sync.Once
	err     error
	wg      sync.WaitGroup
}

// NewStreamnoteWriter builds a writer against a LedgerClient. log may be nil.
func NewStreamnoteWriter(client LedgerClient, log *zap.SugaredLogger) *StreamnoteWriter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StreamnoteWriter{client: client, log: log, done: make(chan struct{})}
}

// Start resolves the sender, generates a fresh receiver, derives
// encryption material, submits the metadata transaction, and launches the
// processor/submitter loops.
func (w *StreamnoteWriter) Start(ctx context.Context, senderMnemonic string, opts StreamWriteOptions) error {
	wallet, err := WalletFromMnemonic(senderMnemonic, "")
	if err != nil {
		return fmt.Errorf("streamnote write: %w", err)
	}
	senderPriv, senderPub := wallet.RootKeypair()
	w.senderAddr = pubKeyToAddress(senderPub)
	w.senderSK = senderPriv

	accid, addid, err := RandomIndices()
	if err != nil {
		return fmt.Errorf("streamnote write: %w", err)
	}
	receiverPriv, receiverPub, err := wallet.PrivateKey(accid, addid)
	if err != nil {
		return fmt.Errorf("streamnote write: %w", err)
	}
	w.receiverAddr = pubKeyToAddress(receiverPub)
	w.receiverSK = receiverPriv

	codecName := opts.Compression.Name
	if codecName == "" && opts.Compression.Mode == "" {
		codecName = "none"
	}
	codec, _, err := DefaultRegistry.Resolve(ctx, CodecSelection{Name: codecName, Mode: opts.Compression.Mode, Params: opts.Compression.Params}, nil, false)
	if err != nil {
		return fmt.Errorf("streamnote write: %w", err)
	}
	w.codec = codec
	w.opts = opts

	meta := &Metadata{
		Version: MetadataVersion,
		MIME:    opts.MIME,
		Type:    "stream",
		AddID:   addid,
		AccID:   accid,
	}
	if codec.Name() != "none" {
		meta.Compression = codec.Name()
	}
	if err := meta.SetPlainTitle(opts.Title); err != nil {
		return fmt.Errorf("streamnote write: %w", err)
	}

	hasKeyMaterial := len(opts.AESKey) > 0 || opts.Password != ""
	if hasKeyMaterial {
		if opts.Password != "" {
			salt, err := NewSalt()
			if err != nil {
				return fmt.Errorf("streamnote write: %w", err)
			}
			w.key = DeriveKey(opts.Password, salt)
			w.seed = salt
			meta.Salt = b64(salt)
		} else {
			w.key = opts.AESKey
			iv := make([]byte, streamIVSize)
			if _, err := crand.Read(iv); err != nil {
				return fmt.Errorf("streamnote write: %w", err)
			}
			w.seed = iv
			meta.IV = b64(iv)
		}
		if opts.EncryptTitle == nil || *opts.EncryptTitle {
			enc, err := Encrypt(w.key, []byte(opts.Title))
			if err != nil {
				return fmt.Errorf("streamnote write: title: %w", err)
			}
			ct, tag := splitTag(enc.Ciphertext)
			if err := meta.SetEncryptedTitle(EncryptedTitle{IV: b64(enc.Nonce[:]), Tag: b64(tag), Data: b64(ct)}); err != nil {
				return fmt.Errorf("streamnote write: %w", err)
			}
		}
	}

	metaNote, err := meta.MarshalNote()
	if err != nil {
		return err
	}

	params, err := w.client.SuggestedParams(ctx)
	if err != nil {
		return fmt.Errorf("streamnote write: %w", err)
	}
	w.params = params

	id, _, err := w.submitRecord(ctx, w.receiverAddr, metaNote, nil)
	if err != nil {
		return fmt.Errorf("streamnote write: %w", err)
	}
	w.payloadID = id

	w.wg.Add(2)
	go w.runProcessor(ctx)
	go w.runSubmitter(ctx)
	return nil
}

// Save appends raw bytes to the rolling buffer. Bytes saved after Stop are
// discarded.
func (w *StreamnoteWriter) Save(raw []byte) {
	w.mu.Lock()
	if !w.stopRequested {
		w.content = append(w.content, raw...)
	}
	w.mu.Unlock()
}

// Stop requests finalization: no more writes are accepted, the remaining
// buffer is flushed, and a stop transaction is submitted once the queue
// drains.
func (w *StreamnoteWriter) Stop() {
	w.mu.Lock()
	w.stopRequested = true
	w.mu.Unlock()
}

// Wait blocks until the session is finalized and returns the summary.
func (w *StreamnoteWriter) Wait(ctx context.Context) (*WriteResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
	}
	w.wg.Wait()
	if w.err != nil {
		if w.opts.OnError != nil {
			w.opts.OnError(w.err)
		}
		return nil, w.err
	}
	result := &WriteResult{
		PayloadTransactionID: w.payloadID,
		Fees:                 w.fees,
		Compression:          w.codec.Name(),
	}
	if w.opts.OnFinish != nil {
		w.opts.OnFinish(result)
	}
	return result, nil
}

func (w *StreamnoteWriter) fail(err error) {
	w.errOnce.Do(func() {
		w.err = err
		close(w.done)
	})
}

func (w *StreamnoteWriter) runProcessor(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(processorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.fail(ctx.Err())
			return
		case <-ticker.C:
			finalized, err := w.processorStep(ctx)
			if err != nil {
				w.fail(err)
				return
			}
			if finalized {
				return
			}
		}
	}
}

// processorStep runs one iteration of the processor loop. Returns
// finalized=true once the buffer has been fully drained following a stop
// request.
func (w *StreamnoteWriter) processorStep(ctx context.Context) (finalized bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.content) == 0 {
		if w.stopRequested {
			w.isFinalized = true
			return true, nil
		}
		return false, nil
	}

	sliceLen := minInt(MaxNoteSize+w.pad.padding, len(w.content))
	candidate, err := w.buildCandidate(w.content[:sliceLen])
	if err != nil {
		return false, err
	}
	w.trackHash(candidate)

	w.log.Debugw("streamnote write: processor step",
		"buffer", len(w.content), "padding", w.pad.padding, "candidate", len(candidate))

	if w.stopRequested {
		full, err := w.buildCandidate(w.content)
		if err == nil && len(full) < MaxNoteSize {
			w.enqueue(full)
			w.content = nil
			w.counter++
			w.isFinalized = true
			return true, nil
		}
	}

	if len(candidate) < MaxNoteSize {
		w.pad.padding += paddingStep
		if !w.pad.tsSameHash.IsZero() && time.Since(w.pad.tsSameHash) >= noteMaxSizeNotReachedTimeout {
			w.enqueue(candidate)
			w.content = w.content[sliceLen:]
			w.pad = streamPadding{}
			w.counter++
		}
		return false, nil
	}

	for len(candidate) > MaxNoteSize {
		w.pad.padding--
		sliceLen = minInt(maxInt(MaxNoteSize+w.pad.padding, 0), len(w.content))
		candidate, err = w.buildCandidate(w.content[:sliceLen])
		if err != nil {
			return false, err
		}
		if err := sleepCtx(ctx, paddingSearchDelay); err != nil {
			return false, err
		}
	}
	w.enqueue(candidate)
	w.content = w.content[sliceLen:]
	w.pad = streamPadding{}
	w.counter++
	return false, nil
}

func (w *StreamnoteWriter) trackHash(candidate []byte) {
	hash := sha256.Sum256(candidate)
	if w.pad.hasLastHash && hash == w.pad.lastHash {
		return
	}
	w.pad.lastHash = hash
	w.pad.hasLastHash = true
	w.pad.tsSameHash = time.Now()
}

// buildCandidate compresses, stream-encrypts (if key material is set), and
// prepends the counter to a raw slice, producing a speculative candidate
// record whose size the processor loop then adjusts padding against.
func (w *StreamnoteWriter) buildCandidate(raw []byte) ([]byte, error) {
	compressed, err := w.codec.Compress(context.Background(), raw)
	if err != nil {
		return nil, err
	}
	content := compressed
	if len(w.key) > 0 {
		content, err = EncryptWithDerivation(w.key, w.seed, compressed, w.counter)
		if err != nil {
			return nil, err
		}
	}
	return EncodeDataRecord(w.counter, content), nil
}

func (w *StreamnoteWriter) enqueue(note []byte) {
	w.queueMu.Lock()
	w.queue = append(w.queue, note)
	w.queueMu.Unlock()
}

func (w *StreamnoteWriter) runSubmitter(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(submitterTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.fail(ctx.Err())
			return
		case <-ticker.C:
			done, err := w.submitterStep(ctx)
			if err != nil {
				w.fail(err)
				return
			}
			if done {
				return
			}
		}
	}
}

// submitterStep runs one iteration of the submitter loop: snapshot-and-clear
// the queue, submit each chunk, and once finalized with an empty queue,
// submit the literal stop note.
func (w *StreamnoteWriter) submitterStep(ctx context.Context) (done bool, err error) {
	w.queueMu.Lock()
	batch := w.queue
	w.queue = nil
	w.queueMu.Unlock()

	for _, note := range batch {
		if _, _, err := w.submitRecord(ctx, w.receiverAddr, note, nil); err != nil {
			return false, err
		}
		w.chunkSent++
		if w.opts.OnProgress != nil {
			w.opts.OnProgress(w.chunkSent)
		}
	}

	w.mu.Lock()
	finalized := w.isFinalized
	w.mu.Unlock()

	w.queueMu.Lock()
	empty := len(w.queue) == 0
	w.queueMu.Unlock()

	if finalized && empty {
		// Stop note is submitted by the receiver account itself, closing
		// its remainder back to the session sender, so a reader can detect
		// the end of the session by a transaction the receiver sent to
		// itself.
		sender := w.senderAddr
		if _, _, err := w.submitRecordAs(ctx, w.receiverAddr, w.receiverSK, w.receiverAddr, []byte("stop"), &sender); err != nil {
			return false, err
		}
		close(w.done)
		return true, nil
	}
	return false, nil
}

func (w *StreamnoteWriter) submitRecord(ctx context.Context, receiver Address, note []byte, closeTo *Address) (id string, fee uint64, err error) {
	return w.submitRecordAs(ctx, w.senderAddr, w.senderSK, receiver, note, closeTo)
}

func (w *StreamnoteWriter) submitRecordAs(ctx context.Context, from Address, fromSK []byte, receiver Address, note []byte, closeTo *Address) (id string, fee uint64, err error) {
	attempts := 0
	for {
		unsigned, err := w.client.BuildPayment(ctx, w.params, from, receiver, 0, note, closeTo)
		if err != nil {
			return "", 0, fmt.Errorf("streamnote write: build payment: %w", err)
		}
		signed, err := w.client.Sign(ctx, unsigned, fromSK)
		if err != nil {
			return "", 0, fmt.Errorf("streamnote write: sign: %w", err)
		}
		submitErr := w.client.Submit(ctx, signed)
		if submitErr == nil {
			confirmed, werr := w.client.WaitForConfirmation(ctx, signed)
			if werr == nil {
				w.fees += signed.Fee
				return confirmed.ID, signed.Fee, nil
			}
			submitErr = werr
		}
		if se, ok := submitErr.(*SubmitError); ok {
			if se.Kind == SubmitExpired {
				return "", 0, se
			}
			if isAlreadyInLedger(se.Message) {
				w.fees += signed.Fee
				return se.TxID, signed.Fee, nil
			}
		}
		attempts++
		if attempts >= retryLimit {
			fresh, perr := w.client.SuggestedParams(ctx)
			if perr != nil {
				return "", 0, fmt.Errorf("streamnote write: refresh params: %w", perr)
			}
			w.params = fresh
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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
