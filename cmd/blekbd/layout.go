package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaz8081/blekbd/internal/keymap"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the configured key layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := cfg.Layout()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Primary layer:")
		printLayer(out, l, keymap.LayerPrimary)
		fmt.Fprintln(out, "\nFn layer:")
		printLayer(out, l, keymap.LayerFn)
		return nil
	},
}

// printLayer prints one layer as an aligned grid, out lines as rows.
func printLayer(w io.Writer, l *keymap.Layout, layer uint8) {
	names := make([][]string, l.Rows())
	width := 3
	for out := range l.Rows() {
		names[out] = make([]string, l.Cols())
		for in := range l.Cols() {
			code := l.Lookup(layer, out, in)
			name := code.String()
			if code == keymap.None {
				name = "___"
			}
			names[out][in] = name
			width = max(width, len(name))
		}
	}
	for _, row := range names {
		cells := make([]string, len(row))
		for i, n := range row {
			cells[i] = fmt.Sprintf("%-*s", width, n)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " "))
	}
}
