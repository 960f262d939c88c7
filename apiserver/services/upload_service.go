package services

import (
	"context"

	core "ledgernote/core"
)

// UploadService wraps the core upload manager and the one-shot
// read/write pipelines for the HTTP API.
type UploadService struct {
	manager *core.Manager
	writer  *core.BlocknoteWriter
	reader  *core.BlocknoteReader
}

// NewService builds an UploadService from an already-constructed Manager
// and the LedgerClient it shares with the rest of the process.
func NewService(manager *core.Manager, client core.LedgerClient) *UploadService {
	return &UploadService{
		manager: manager,
		writer:  core.NewBlocknoteWriter(client, nil),
		reader:  core.NewBlocknoteReader(client, nil),
	}
}

// PrepareBootstrap starts the bootstrap-funded upload's first manager call
// and returns the polling job id.
func (s *UploadService) PrepareBootstrap(ctx context.Context, userAddr core.Address, content []byte, opts core.PrepareBootstrapOptions) string {
	return s.manager.PrepareBootstrapTransaction(ctx, userAddr, content, opts)
}

// RunFromBootstrap starts the bootstrap-funded upload's second manager call,
// once the funding transaction has confirmed.
func (s *UploadService) RunFromBootstrap(ctx context.Context, txID, bootstrapKey string, enc core.FinishEncryption) string {
	return s.manager.RunFromBootstrapTransaction(ctx, txID, bootstrapKey, enc)
}

// JobStatus polls a running manager job.
func (s *UploadService) JobStatus(id string) (core.Job, bool) {
	return s.manager.GetJob(id)
}

// GetAllSenders lists every bootstrap sender the manager has funded for
// userAddr.
func (s *UploadService) GetAllSenders(ctx context.Context, userAddr core.Address) ([]core.Address, error) {
	return s.manager.GetAllSenders(ctx, userAddr)
}

// GetPayloadIDFromSender resolves a bootstrap sender to its payload
// metadata transaction id.
func (s *UploadService) GetPayloadIDFromSender(ctx context.Context, sender core.Address) (string, error) {
	return s.manager.GetPayloadIDFromSender(ctx, sender)
}

// Read performs a direct one-shot blocknote read (no bootstrap funding
// involved — the caller already knows the payload transaction id).
func (s *UploadService) Read(ctx context.Context, payloadID string, opts core.ReadOptions) (*core.ReadResult, error) {
	return s.reader.Read(ctx, payloadID, opts)
}
