package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chaz8081/blekbd/internal/bond"
)

var bondsCmd = &cobra.Command{
	Use:   "bonds",
	Short: "Inspect or clear stored host bonds",
}

var bondsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bonded hosts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openBonds()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		active := store.ActiveSlot()
		for slot := range store.Slots() {
			marker := " "
			if slot == active {
				marker = "*"
			}
			line := "(empty)"
			for _, r := range recs {
				if r.Slot == slot {
					line = fmt.Sprintf("%s durable=%v last_used=%d", r.Peer, r.Durable, r.Counter)
				}
			}
			fmt.Fprintf(out, "%s %d  %s\n", marker, slot, line)
		}
		return nil
	},
}

var bondsClearCmd = &cobra.Command{
	Use:   "clear [slot]",
	Short: "Forget one host slot, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot := bond.AnySlot
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad slot %q: %w", args[0], err)
			}
			slot = n
		}

		store, err := openBonds()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(slot); err != nil {
			return err
		}
		if slot == bond.AnySlot {
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared all host slots")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared host slot %d\n", slot)
		}
		return nil
	},
}

func init() {
	bondsCmd.AddCommand(bondsListCmd, bondsClearCmd)
}

func openBonds() (*bond.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bond.Open(cfg.Bond.Path, cfg.Bond.Slots, []byte(cfg.Bond.Secret))
}
