package cmd

import (
	"fmt"
	"sort"

	"github.com/mezonai/mmn-storage/block"
	"github.com/mezonai/mmn-storage/jsonx"
	"github.com/mezonai/mmn-storage/slot"
	"github.com/mezonai/mmn-storage/storage"
	"github.com/spf13/cobra"
)

var (
	rangeStart string
	rangeEnd   string

	putSlot    string
	putPayload string
	putCreator string

	getHash string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print block count, slot bounds and cache state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(h storage.Handle) error {
			st, err := h.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out, err := jsonx.MarshalIndent(st)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		})
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "List blocks with start <= slot < end",
	Long: `List the blocks stored in a slot range. Either bound may be omitted.
Examples:
  # blocks from period 10 thread 0 up to, but excluding, period 12 thread 0
  range --start 10,0 --end 12,0
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := optionalSlot(rangeStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		end, err := optionalSlot(rangeEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}

		return withStore(cmd, func(h storage.Handle) error {
			blocks, err := h.GetSlotRange(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			type row struct {
				slot slot.Slot
				hash block.Hash
			}
			rows := make([]row, 0, len(blocks))
			for hash, b := range blocks {
				rows = append(rows, row{slot: b.Slot(), hash: hash})
			}
			sort.Slice(rows, func(i, j int) bool {
				if rows[i].slot != rows[j].slot {
					return rows[i].slot.Less(rows[j].slot)
				}
				return rows[i].hash.String() < rows[j].hash.String()
			})
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.slot, r.hash)
			}
			return nil
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Store a block built from a payload, keyed by its sha256 hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := slot.Parse(putSlot)
		if err != nil {
			return fmt.Errorf("invalid --slot: %w", err)
		}
		b := block.New(s, []byte(putPayload))
		b.Header.Creator = putCreator
		data, err := block.Encode(b)
		if err != nil {
			return err
		}
		hash := block.HashOf(data)

		return withStore(cmd, func(h storage.Handle) error {
			if err := h.AddBlock(cmd.Context(), hash, b); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print a stored block",
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := block.HashFromString(getHash)
		if err != nil {
			return fmt.Errorf("invalid --hash: %w", err)
		}
		return withStore(cmd, func(h storage.Handle) error {
			b, found, err := h.GetBlock(cmd.Context(), hash)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("block %s not found", hash)
			}
			out, err := jsonx.MarshalIndent(b)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored block",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(h storage.Handle) error {
			return h.Clear(cmd.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, rangeCmd, putCmd, getCmd, clearCmd)

	rangeCmd.Flags().StringVar(&rangeStart, "start", "", "inclusive lower bound as period,thread")
	rangeCmd.Flags().StringVar(&rangeEnd, "end", "", "exclusive upper bound as period,thread")

	putCmd.Flags().StringVar(&putSlot, "slot", "", "slot as period,thread")
	putCmd.Flags().StringVar(&putPayload, "payload", "", "block payload")
	putCmd.Flags().StringVar(&putCreator, "creator", "", "block creator")
	_ = putCmd.MarkFlagRequired("slot")

	getCmd.Flags().StringVar(&getHash, "hash", "", "base58 block hash")
	_ = getCmd.MarkFlagRequired("hash")
}

func optionalSlot(value string) (*slot.Slot, error) {
	if value == "" {
		return nil, nil
	}
	s, err := slot.Parse(value)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
