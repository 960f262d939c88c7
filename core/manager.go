package core

// Upload manager: lets a browser user fund an upload with a single signed
// transaction without ever exchanging the upload's encryption material
// with the server. Grounded on the teacher's
// idwallet_registration.go (a registry struct instantiated once and
// called from CLI/API handlers) and storage.go's gateway-client shape,
// generalized into an instance (never a package-level singleton, per the
// explicit-construction resolution recorded for Config) that tracks each
// call in an in-process UUID-keyed job table.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

const (
	// feeMultiplier pads the funding amount so retries/rebuilds never
	// starve the bootstrap account mid-upload.
	feeMultiplier = 2
	// minBalanceBuffer covers two minimum account balances (bootstrap
	// sender + receiver) and their eventual refund.
	minBalanceBuffer uint64 = 200_000
)

// JobStatus is the lifecycle of one async manager call.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobError   JobStatus = "error"
)

// Job is a polled record of one manager call.
type Job struct {
	ID     string
	Status JobStatus
	Result any
	Err    error
}

// PrepareBootstrapOptions is the subset of WriteOptions a browser user may
// set; aes_key/password/encrypt_title are deliberately absent, since the
// server preparing this transaction must never see the upload's
// encryption material.
type PrepareBootstrapOptions struct {
	Compression CodecSelection
	MIME        string
	Title       string
}

// FinishEncryption is the encryption material supplied only at run time,
// once the manager already controls the bootstrap sender.
type FinishEncryption struct {
	AESKey       []byte
	Password     string
	EncryptTitle *bool
}

type fundingSecret struct {
	SenderMnemonic string `json:"sender_mnemonic"`
	BootstrapKey   string `json:"bootstrap_key"`
}

type bootstrapNoteInner struct {
	IV   string `json:"iv"`
	Data string `json:"data"`
	Tag  string `json:"tag"`
}

// bootstrapNote is the manager bootstrap note schema:
// {"app":"<APP_NAME>","blocknote":"<base64 of JSON {iv,data,tag} hex>"}.
type bootstrapNote struct {
	App       string `json:"app"`
	Blocknote string `json:"blocknote"`
}

// Manager coordinates bootstrap-funded uploads.
type Manager struct {
	client  LedgerClient
	store   *Store
	secret  *ProcessSecret
	appName string
	log     *logrus.Logger
	zlog    *zap.SugaredLogger

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager builds a Manager. logger may be nil.
func NewManager(client LedgerClient, store *Store, secret *ProcessSecret, appName string, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		client:  client,
		store:   store,
		secret:  secret,
		appName: appName,
		log:     logger,
		zlog:    zap.NewNop().Sugar(),
		jobs:    make(map[string]*Job),
	}
}

func (m *Manager) newJob() *Job {
	job := &Job{ID: uuid.NewString(), Status: JobPending}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return job
}

func (m *Manager) setRunning(id string) {
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		j.Status = JobRunning
	}
	m.mu.Unlock()
}

func (m *Manager) finish(id string, result any, err error) {
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		j.Result = result
		j.Err = err
		if err != nil {
			j.Status = JobError
		} else {
			j.Status = JobDone
		}
	}
	m.mu.Unlock()
}

// GetJob polls a job's current state. The record is evicted once a caller
// observes a terminal state.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	out := *j
	if out.Status == JobDone || out.Status == JobError {
		delete(m.jobs, id)
	}
	return out, true
}

// PrepareBootstrapTransaction simulates the upload to estimate its fees,
// then builds (but does not sign or submit) a funding payment from the
// user to a freshly generated bootstrap sender large enough to cover
// those fees plus minimum balances. It runs asynchronously; poll the
// returned job id via GetJob.
func (m *Manager) PrepareBootstrapTransaction(ctx context.Context, userAddr Address, content []byte, opts PrepareBootstrapOptions) string {
	job := m.newJob()
	go func() {
		m.setRunning(job.ID)
		unsigned, err := m.prepareBootstrap(ctx, userAddr, content, opts)
		m.finish(job.ID, unsigned, err)
	}()
	return job.ID
}

func (m *Manager) prepareBootstrap(ctx context.Context, userAddr Address, content []byte, opts PrepareBootstrapOptions) (*UnsignedTxn, error) {
	wallet, mnemonic, err := NewRandomWallet(256)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	_, senderPub := wallet.RootKeypair()
	senderAddr := pubKeyToAddress(senderPub)

	writer := NewBlocknoteWriter(m.client, m.zlog)
	sim, err := writer.Write(ctx, mnemonic, content, WriteOptions{
		Compression: opts.Compression,
		MIME:        opts.MIME,
		Title:       opts.Title,
		Simulate:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("manager: simulate: %w", err)
	}

	suggested, err := m.client.SuggestedParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	amount := sim.Fees*feeMultiplier + minBalanceBuffer + suggested.MinFee*feeMultiplier

	bootstrapKey, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	note, err := m.buildBootstrapNote(mnemonic, bootstrapKey)
	if err != nil {
		return nil, err
	}

	unsigned, err := m.client.BuildPayment(ctx, suggested, userAddr, senderAddr, amount, note, nil)
	if err != nil {
		return nil, fmt.Errorf("manager: build funding txn: %w", err)
	}

	paramsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	if err := m.store.Put(UploadRecord{TxID: unsigned.ID, Content: content, Params: paramsJSON}); err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m.log.WithField("txid", unsigned.ID).Info("manager: prepared bootstrap transaction")
	return &unsigned, nil
}

// RunFromBootstrapTransaction merges user-supplied encryption material
// into the persisted request and runs the real (non-simulated) upload,
// once the browser has signed and submitted the funding transaction
// PrepareBootstrapTransaction prepared.
func (m *Manager) RunFromBootstrapTransaction(ctx context.Context, txID, bootstrapKey string, encryption FinishEncryption) string {
	job := m.newJob()
	go func() {
		m.setRunning(job.ID)
		result, err := m.runFromBootstrap(ctx, txID, bootstrapKey, encryption)
		m.finish(job.ID, result, err)
	}()
	return job.ID
}

func (m *Manager) runFromBootstrap(ctx context.Context, txID, bootstrapKey string, encryption FinishEncryption) (*WriteResult, error) {
	fundingTx, err := m.client.LookupByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	secret, err := m.decryptBootstrapNote(fundingTx.Note)
	if err != nil {
		return nil, err
	}
	if secret.BootstrapKey != bootstrapKey {
		return nil, ErrInvalidBootstrapKey
	}

	rec, ok := m.store.Get(txID)
	if !ok {
		return nil, fmt.Errorf("manager: no persisted request for %s (expired or unknown)", txID)
	}
	var opts PrepareBootstrapOptions
	if err := json.Unmarshal(rec.Params, &opts); err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}

	writer := NewBlocknoteWriter(m.client, m.zlog)
	result, err := writer.Write(ctx, secret.SenderMnemonic, rec.Content, WriteOptions{
		Compression:  opts.Compression,
		MIME:         opts.MIME,
		Title:        opts.Title,
		AESKey:       encryption.AESKey,
		Password:     encryption.Password,
		EncryptTitle: encryption.EncryptTitle,
	})
	if err != nil {
		return nil, err
	}

	wallet, err := WalletFromMnemonic(secret.SenderMnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	senderSK, senderPub := wallet.RootKeypair()
	senderAddr := pubKeyToAddress(senderPub)

	suggested, err := m.client.SuggestedParams(ctx)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	unsigned, err := m.client.BuildPayment(ctx, suggested, senderAddr, fundingTx.Sender, 0, nil, &fundingTx.Sender)
	if err != nil {
		return nil, fmt.Errorf("manager: refund: %w", err)
	}
	signed, err := m.client.Sign(ctx, unsigned, senderSK)
	if err != nil {
		return nil, fmt.Errorf("manager: refund: %w", err)
	}
	if err := m.client.Submit(ctx, signed); err != nil {
		return nil, fmt.Errorf("manager: refund: %w", err)
	}
	if _, err := m.client.WaitForConfirmation(ctx, signed); err != nil {
		return nil, fmt.Errorf("manager: refund: %w", err)
	}

	_ = m.store.Delete(txID)
	m.log.WithField("txid", txID).Info("manager: bootstrap upload complete, residual funds returned")
	return result, nil
}

// GetAllSenders returns every bootstrap sender address the manager has
// funded on behalf of userAddr.
func (m *Manager) GetAllSenders(ctx context.Context, userAddr Address) ([]Address, error) {
	search := NewSearcher(m.client, m.zlog)
	txns, err := search.ByAddress(ctx, userAddr, RoleSender, 0)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	var out []Address
	for _, t := range txns {
		if !m.looksLikeBootstrapNote(t.Note) {
			continue
		}
		if _, err := m.decryptBootstrapNote(t.Note); err != nil {
			continue
		}
		out = append(out, t.Receiver)
	}
	return out, nil
}

// GetPayloadIDFromSender finds the metadata transaction originated by a
// bootstrap sender account.
func (m *Manager) GetPayloadIDFromSender(ctx context.Context, sender Address) (string, error) {
	search := NewSearcher(m.client, m.zlog)
	txns, err := search.ByAddress(ctx, sender, RoleSender, 0)
	if err != nil {
		return "", fmt.Errorf("manager: %w", err)
	}
	for _, t := range txns {
		if _, err := ParseMetadata(t.Note); err == nil {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("manager: no payload metadata found for sender")
}

// GetBootstrapSenderMnemonic recovers the mnemonic embedded in the
// funding note from userAddr (sender) to a bootstrap account (receiver).
func (m *Manager) GetBootstrapSenderMnemonic(ctx context.Context, userAddr, bootstrapSender Address) (string, error) {
	search := NewSearcher(m.client, m.zlog)
	txns, err := search.AllReceived(ctx, userAddr, bootstrapSender, "", 0)
	if err != nil {
		return "", fmt.Errorf("manager: %w", err)
	}
	for _, t := range txns {
		if !m.looksLikeBootstrapNote(t.Note) {
			continue
		}
		secret, err := m.decryptBootstrapNote(t.Note)
		if err != nil {
			continue
		}
		return secret.SenderMnemonic, nil
	}
	return "", fmt.Errorf("manager: no funding note found for sender %s", bootstrapSender.String())
}

func (m *Manager) looksLikeBootstrapNote(note []byte) bool {
	return strings.Contains(string(note), `"app":"`+m.appName+`"`)
}

func (m *Manager) buildBootstrapNote(mnemonic, bootstrapKey string) ([]byte, error) {
	payload, err := json.Marshal(fundingSecret{SenderMnemonic: mnemonic, BootstrapKey: bootstrapKey})
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	enc, err := m.secret.EncryptNote(payload)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	ct, tag := splitTag(enc.Ciphertext)
	inner := bootstrapNoteInner{IV: hex.EncodeToString(enc.Nonce[:]), Data: hex.EncodeToString(ct), Tag: hex.EncodeToString(tag)}
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	note := bootstrapNote{App: m.appName, Blocknote: b64(innerJSON)}
	out, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	if len(out) > MaxNoteSize {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}

func (m *Manager) decryptBootstrapNote(note []byte) (*fundingSecret, error) {
	var bn bootstrapNote
	if err := json.Unmarshal(note, &bn); err != nil {
		return nil, fmt.Errorf("manager: not a bootstrap note: %w", err)
	}
	innerJSON, err := unb64(bn.Blocknote)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	var inner bootstrapNoteInner
	if err := json.Unmarshal(innerJSON, &inner); err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	iv, err := hex.DecodeString(inner.IV)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	data, err := hex.DecodeString(inner.Data)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	tag, err := hex.DecodeString(inner.Tag)
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	var nonce [gcmNonceSize]byte
	copy(nonce[:], iv)
	plain, err := m.secret.DecryptNote(nonce, joinTag(data, tag))
	if err != nil {
		return nil, err
	}
	var secret fundingSecret
	if err := json.Unmarshal(plain, &secret); err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	return &secret, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
