package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Ramsey-B/juniper/pkg/descriptors"
	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/record"
	canonicalroutes "github.com/Ramsey-B/juniper/pkg/routes/canonical"
	"github.com/spf13/cobra"
)

func newMapCommand() *cobra.Command {
	var event bool

	cmd := &cobra.Command{
		Use:   "map <kind> <file.json|->",
		Short: "Map a raw platform object and print its canonical record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := record.ParseKind(args[0])
			if err != nil {
				return err
			}

			data, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}

			return runMap(cmd.OutOrStdout(), kind, data, event)
		},
	}

	cmd.Flags().BoolVar(&event, "event", false, "input is a platform event envelope rather than a bare object")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func runMap(out io.Writer, kind record.Kind, data []byte, event bool) error {
	var (
		obj record.Object
		err error
	)
	if event {
		var envelope *kafka.StripeEvent
		envelope, err = kafka.ParseStripeEvent(data)
		if err == nil {
			obj, err = envelope.Object()
		}
	} else {
		obj, err = record.Decode(data)
	}
	if err != nil {
		return fmt.Errorf("invalid %s input: %w", kind, err)
	}

	set, err := descriptors.Load()
	if err != nil {
		return err
	}

	result, err := set.Map(kind, obj)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(canonicalroutes.NewMapResponse(result))
}
