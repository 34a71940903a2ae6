// Command trident runs the plugin daemon described by a configuration
// document, driving every enabled plugin to completion and exiting with
// a status code reflecting whether any of them failed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "trident",
		Short: "Trident runs configured plugins concurrently and records their results",
	}

	root.AddCommand(newRunCommand())
	return root
}
