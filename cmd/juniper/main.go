package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "juniper",
		Short:         "Maps payment-platform objects into canonical records and sales-tax requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// amounts go on the wire as JSON numbers, like the raw platform amounts
			decimal.MarshalJSONWithoutQuotes = true
		},
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMapCommand())

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
