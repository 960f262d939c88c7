package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	core "ledgernote/core"
)

func streamWriteCmd() *cobra.Command {
	var (
		senderMnemonic string
		compression    string
		mime           string
		title          string
		password       string
		aesKeyHex      string
		encryptTitle   bool
	)

	cmd := &cobra.Command{
		Use:   "stream-write",
		Short: "Start a streamnote session and forward stdin to it until EOF",
		RunE: func(cmd *cobra.Command, args []string) error {
			var aesKey []byte
			if aesKeyHex != "" {
				var err error
				aesKey, err = hex.DecodeString(aesKeyHex)
				if err != nil {
					return fmt.Errorf("decode --aes-key: %w", err)
				}
			}
			opts := core.StreamWriteOptions{
				Compression: core.CodecSelection{Mode: compression},
				MIME:        mime,
				Title:       title,
				AESKey:      aesKey,
				Password:    password,
			}
			if cmd.Flags().Changed("encrypt-title") {
				opts.EncryptTitle = &encryptTitle
			}

			writer := core.NewStreamnoteWriter(mustClient(), nil)
			ctx := cmd.Context()
			if err := writer.Start(ctx, senderMnemonic, opts); err != nil {
				return err
			}

			buf := make([]byte, 32*1024)
			in := bufio.NewReader(os.Stdin)
			for {
				n, err := in.Read(buf)
				if n > 0 {
					writer.Save(append([]byte(nil), buf[:n]...))
				}
				if err != nil {
					break
				}
			}
			writer.Stop()

			result, err := writer.Wait(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("payload_id=%s fees=%d compression=%s\n", result.PayloadTransactionID, result.Fees, result.Compression)
			return nil
		},
	}

	cmd.Flags().StringVar(&senderMnemonic, "sender-mnemonic", "", "sender account mnemonic (required)")
	cmd.Flags().StringVar(&compression, "compression", "", "\"\", best, or fast")
	cmd.Flags().StringVar(&mime, "mime", "application/octet-stream", "mime type recorded in metadata")
	cmd.Flags().StringVar(&title, "title", "", "payload title")
	cmd.Flags().StringVar(&password, "password", "", "password to derive the encryption key from")
	cmd.Flags().StringVar(&aesKeyHex, "aes-key", "", "hex-encoded raw AES key")
	cmd.Flags().BoolVar(&encryptTitle, "encrypt-title", false, "also encrypt the title")
	cmd.MarkFlagRequired("sender-mnemonic")
	return cmd
}
