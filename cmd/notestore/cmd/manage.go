package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	core "ledgernote/core"
)

// mustManager wires a Manager from the process environment, shared by
// every subcommand in this file.
func mustManager() *core.Manager {
	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "notestore:", err)
		os.Exit(1)
	}
	client := cfg.LedgerClient()
	store, err := core.NewStore(cfg.StoreDir, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "notestore:", err)
		os.Exit(1)
	}
	secret, err := core.NewProcessSecret(cfg.PrivateKeyAES)
	if err != nil {
		fmt.Fprintln(os.Stderr, "notestore:", err)
		os.Exit(1)
	}
	return core.NewManager(client, store, secret, cfg.AppName, nil)
}

// awaitJob polls a manager job to a terminal state.
func awaitJob(m *core.Manager, jobID string) (core.Job, error) {
	for {
		job, ok := m.GetJob(jobID)
		if !ok {
			return core.Job{}, fmt.Errorf("notestore: job %s vanished", jobID)
		}
		if job.Status == core.JobDone || job.Status == core.JobError {
			return job, job.Err
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func manageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manage",
		Short: "Bootstrap-funded uploads: a browser signs one transaction, never the upload's own keys",
	}
	cmd.AddCommand(managePrepareCmd())
	cmd.AddCommand(manageRunCmd())
	cmd.AddCommand(manageSendersCmd())
	return cmd
}

func managePrepareCmd() *cobra.Command {
	var (
		userAddr    string
		file        string
		compression string
		mime        string
		title       string
	)
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Queue a bootstrap upload and print the funding transaction the user must sign",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := core.AddressFromString(userAddr)
			if err != nil {
				return err
			}
			raw, err := readInput(file)
			if err != nil {
				return err
			}
			m := mustManager()
			jobID := m.PrepareBootstrapTransaction(cmd.Context(), addr, raw, core.PrepareBootstrapOptions{
				Compression: core.CodecSelection{Mode: compression},
				MIME:        mime,
				Title:       title,
			})
			job, err := awaitJob(m, jobID)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(job.Result)
		},
	}
	cmd.Flags().StringVar(&userAddr, "user-addr", "", "address that will sign the funding transaction (required)")
	cmd.Flags().StringVar(&file, "file", "-", "path to the payload, or - for stdin")
	cmd.Flags().StringVar(&compression, "compression", "", "\"\", best, or fast")
	cmd.Flags().StringVar(&mime, "mime", "application/octet-stream", "mime type recorded in metadata")
	cmd.Flags().StringVar(&title, "title", "", "payload title")
	cmd.MarkFlagRequired("user-addr")
	return cmd
}

func manageRunCmd() *cobra.Command {
	var (
		txID         string
		bootstrapKey string
		password     string
		aesKeyHex    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Finish a bootstrap upload once its funding transaction is confirmed",
		RunE: func(cmd *cobra.Command, args []string) error {
			var aesKey []byte
			if aesKeyHex != "" {
				var err error
				aesKey, err = hex.DecodeString(aesKeyHex)
				if err != nil {
					return fmt.Errorf("decode --aes-key: %w", err)
				}
			}
			m := mustManager()
			jobID := m.RunFromBootstrapTransaction(cmd.Context(), txID, bootstrapKey, core.FinishEncryption{
				AESKey:   aesKey,
				Password: password,
			})
			job, err := awaitJob(m, jobID)
			if err != nil {
				return err
			}
			result := job.Result.(*core.WriteResult)
			fmt.Printf("payload_id=%s fees=%d\n", result.PayloadTransactionID, result.Fees)
			return nil
		},
	}
	cmd.Flags().StringVar(&txID, "txid", "", "funding transaction id from \"manage prepare\" (required)")
	cmd.Flags().StringVar(&bootstrapKey, "bootstrap-key", "", "bootstrap key from \"manage prepare\" (required)")
	cmd.Flags().StringVar(&password, "password", "", "password to encrypt the payload with")
	cmd.Flags().StringVar(&aesKeyHex, "aes-key", "", "hex-encoded raw AES key")
	cmd.MarkFlagRequired("txid")
	cmd.MarkFlagRequired("bootstrap-key")
	return cmd
}

func manageSendersCmd() *cobra.Command {
	var userAddr string
	cmd := &cobra.Command{
		Use:   "senders",
		Short: "List every bootstrap sender address funded on behalf of a user address",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := core.AddressFromString(userAddr)
			if err != nil {
				return err
			}
			m := mustManager()
			senders, err := m.GetAllSenders(cmd.Context(), addr)
			if err != nil {
				return err
			}
			for _, s := range senders {
				fmt.Println(s.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userAddr, "user-addr", "", "address to look up (required)")
	cmd.MarkFlagRequired("user-addr")
	return cmd
}
