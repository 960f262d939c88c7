package main

import (
	"os"

	"ledgernote/cmd/notestore/cmd"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		os.Exit(1)
	}
}
