package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/shortkeys/internal/cmd"
	"github.com/Iron-Ham/shortkeys/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if !errors.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, "Run with --log-level debug for details.")
		}
		os.Exit(1)
	}
}
