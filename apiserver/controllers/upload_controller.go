package controllers

import (
	"encoding/json"
	"net/http"

	core "ledgernote/core"
	"ledgernote/apiserver/services"
)

// UploadController provides HTTP handlers for the bootstrap-funded
// upload flow and direct payload reads.
type UploadController struct {
	svc *services.UploadService
}

func NewUploadController(svc *services.UploadService) *UploadController {
	return &UploadController{svc: svc}
}

// PrepareBootstrap handles POST /api/upload/prepare: the browser submits
// the content to upload and receives back a job id; the finished job's
// result is the unsigned funding transaction to sign with its own wallet.
func (uc *UploadController) PrepareBootstrap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserAddr string                      `json:"user_addr"`
		Content  []byte                      `json:"content"`
		Options  core.PrepareBootstrapOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := core.AddressFromString(req.UserAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobID := uc.svc.PrepareBootstrap(r.Context(), addr, req.Content, req.Options)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID})
}

// RunFromBootstrap handles POST /api/upload/run: once the browser has
// signed and submitted the funding transaction, it supplies the funding
// txid, the bootstrap key it was given, and the encryption material that
// was never sent to the server until now.
func (uc *UploadController) RunFromBootstrap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxID         string              `json:"txid"`
		BootstrapKey string              `json:"bootstrap_key"`
		Encryption   core.FinishEncryption `json:"encryption"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jobID := uc.svc.RunFromBootstrap(r.Context(), req.TxID, req.BootstrapKey, req.Encryption)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID})
}

// JobStatus handles GET /api/upload/jobs?id=...: polls a prepare/run job.
// The record is evicted the moment it is observed in a terminal state.
func (uc *UploadController) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	job, ok := uc.svc.JobStatus(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(job)
}

// Senders handles GET /api/upload/senders: lists every bootstrap sender
// address funded on behalf of a user address.
func (uc *UploadController) Senders(w http.ResponseWriter, r *http.Request) {
	userAddr := r.URL.Query().Get("user_addr")
	addr, err := core.AddressFromString(userAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	senders, err := uc.svc.GetAllSenders(r.Context(), addr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]string, len(senders))
	for i, a := range senders {
		out[i] = a.String()
	}
	json.NewEncoder(w).Encode(map[string][]string{"senders": out})
}

// Read handles GET /api/payload?id=...: a direct one-shot blocknote read.
func (uc *UploadController) Read(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	opts := core.ReadOptions{
		Password: r.URL.Query().Get("password"),
	}
	result, err := uc.svc.Read(r.Context(), id, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}
