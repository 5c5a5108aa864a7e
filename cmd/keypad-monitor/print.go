package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/sweeney/keypad/keypad"
)

func newPrintCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Read every key once and print the grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, hw, err := openMatrix(o)
			if err != nil {
				return err
			}
			defer hw.Close()

			keys, err := m.Decompose()
			if err != nil {
				return err
			}
			err = printGrid(cmd.OutOrStdout(), keys)
			_, _, relErr := m.Release(keys)
			return multierr.Append(err, relErr)
		},
	}
}

// printGrid writes one line per row, 1 for a pressed key and 0 otherwise.
func printGrid(w io.Writer, keys keypad.Grid) error {
	for r, row := range keys {
		fmt.Fprintf(w, "row %d:", r)
		for _, k := range row {
			pressed, err := k.IsLow()
			if err != nil {
				return fmt.Errorf("read %v: %w", k, err)
			}
			if pressed {
				fmt.Fprint(w, " 1")
			} else {
				fmt.Fprint(w, " 0")
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}
