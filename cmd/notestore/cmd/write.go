package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	core "ledgernote/core"
)

func writeCmd() *cobra.Command {
	var (
		senderMnemonic string
		file           string
		compression    string
		mime           string
		title          string
		password       string
		aesKeyHex      string
		encryptTitle   bool
		revisionOf     string
		simulate       bool
	)

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Upload one payload as a metadata transaction plus a chain of chunk transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(file)
			if err != nil {
				return err
			}
			var aesKey []byte
			if aesKeyHex != "" {
				aesKey, err = hex.DecodeString(aesKeyHex)
				if err != nil {
					return fmt.Errorf("decode --aes-key: %w", err)
				}
			}
			opts := core.WriteOptions{
				Compression: core.CodecSelection{Mode: compression},
				MIME:        mime,
				Title:       title,
				AESKey:      aesKey,
				Password:    password,
				RevisionOf:  revisionOf,
				Simulate:    simulate,
			}
			if cmd.Flags().Changed("encrypt-title") {
				opts.EncryptTitle = &encryptTitle
			}

			writer := core.NewBlocknoteWriter(mustClient(), nil)
			result, err := writer.Write(cmd.Context(), senderMnemonic, raw, opts)
			if err != nil {
				return err
			}
			fmt.Printf("payload_id=%s fees=%d compression=%s duration=%s\n",
				result.PayloadTransactionID, result.Fees, result.Compression, result.Duration)
			return nil
		},
	}

	cmd.Flags().StringVar(&senderMnemonic, "sender-mnemonic", "", "sender account mnemonic (required)")
	cmd.Flags().StringVar(&file, "file", "-", "path to the payload, or - for stdin")
	cmd.Flags().StringVar(&compression, "compression", "", "\"\", best, or fast")
	cmd.Flags().StringVar(&mime, "mime", "application/octet-stream", "mime type recorded in metadata")
	cmd.Flags().StringVar(&title, "title", "", "payload title")
	cmd.Flags().StringVar(&password, "password", "", "password to derive the encryption key from")
	cmd.Flags().StringVar(&aesKeyHex, "aes-key", "", "hex-encoded raw AES key")
	cmd.Flags().BoolVar(&encryptTitle, "encrypt-title", false, "also encrypt the title")
	cmd.Flags().StringVar(&revisionOf, "revision-of", "", "payload id this upload revises")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "compute fees without submitting any transaction")
	cmd.MarkFlagRequired("sender-mnemonic")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
