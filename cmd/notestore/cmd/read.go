package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	core "ledgernote/core"
)

func readCmd() *cobra.Command {
	var (
		payloadID string
		password  string
		aesKeyHex string
		revision  int
		outFile   string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Reassemble a payload from its metadata transaction and chunk chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			var aesKey []byte
			if aesKeyHex != "" {
				var err error
				aesKey, err = hex.DecodeString(aesKeyHex)
				if err != nil {
					return fmt.Errorf("decode --aes-key: %w", err)
				}
			}
			reader := core.NewBlocknoteReader(mustClient(), nil)
			result, err := reader.Read(cmd.Context(), payloadID, core.ReadOptions{
				AESKey:   aesKey,
				Password: password,
				Revision: revision,
			})
			if err != nil {
				return err
			}
			if outFile == "" || outFile == "-" {
				_, err = os.Stdout.Write(result.Content)
				return err
			}
			return os.WriteFile(outFile, result.Content, 0o644)
		},
	}

	cmd.Flags().StringVar(&payloadID, "id", "", "payload transaction id (required)")
	cmd.Flags().StringVar(&password, "password", "", "password the payload was encrypted with")
	cmd.Flags().StringVar(&aesKeyHex, "aes-key", "", "hex-encoded raw AES key")
	cmd.Flags().IntVar(&revision, "revision", 0, "1-based revision number, 0 for most recent")
	cmd.Flags().StringVar(&outFile, "out", "-", "path to write the payload to, or - for stdout")
	cmd.MarkFlagRequired("id")
	return cmd
}
