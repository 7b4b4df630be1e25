package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"synnergy-network/cmd/cli"
)

func main() {
	root := &cobra.Command{
		Use:   "ceecli",
		Short: "Command-line front end for the contract execution engine",
	}
	cli.RegisterCee(root)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
