package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	core "ledgernote/core"
)

// Root builds the notestore cobra command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "notestore",
		Short: "Write and read chunked, encrypted payloads carried in ledger payment notes",
	}
	root.AddCommand(writeCmd())
	root.AddCommand(readCmd())
	root.AddCommand(streamWriteCmd())
	root.AddCommand(streamReadCmd())
	root.AddCommand(manageCmd())
	return root
}

// mustClient builds a LedgerClient from the process environment or exits,
// shared by every subcommand below.
func mustClient() core.LedgerClient {
	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "notestore:", err)
		os.Exit(1)
	}
	return cfg.LedgerClient()
}
