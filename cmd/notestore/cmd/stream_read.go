package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	core "ledgernote/core"
)

func streamReadCmd() *cobra.Command {
	var (
		payloadID string
		password  string
		aesKeyHex string
	)

	cmd := &cobra.Command{
		Use:   "stream-read",
		Short: "Replay history then tail a streamnote session, writing chunks to stdout as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			var aesKey []byte
			if aesKeyHex != "" {
				var err error
				aesKey, err = hex.DecodeString(aesKeyHex)
				if err != nil {
					return fmt.Errorf("decode --aes-key: %w", err)
				}
			}

			reader := core.NewStreamnoteReader(mustClient(), nil)
			ctx := cmd.Context()
			if err := reader.Open(ctx, payloadID, core.StreamReadOptions{AESKey: aesKey, Password: password}); err != nil {
				return err
			}
			reader.OnData = func(chunk []byte) {
				os.Stdout.Write(chunk)
			}
			if err := reader.GetPreviousData(ctx); err != nil {
				return err
			}
			return reader.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&payloadID, "id", "", "streamnote metadata transaction id (required)")
	cmd.Flags().StringVar(&password, "password", "", "password the stream was encrypted with")
	cmd.Flags().StringVar(&aesKeyHex, "aes-key", "", "hex-encoded raw AES key")
	cmd.MarkFlagRequired("id")
	return cmd
}
