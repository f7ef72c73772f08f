package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveUndo bool

var archiveCmd = &cobra.Command{
	Use:   "archive <candidate-id>",
	Short: "Archive an accepted candidate (or restore with --undo)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetArchived(cmd.Context(), cfg.Triage.User, args[0], !archiveUndo); err != nil {
			return err
		}
		if archiveUndo {
			fmt.Printf("%s restored to accepted.\n", args[0])
		} else {
			fmt.Printf("%s archived.\n", args[0])
		}
		return nil
	},
}

func init() {
	archiveCmd.Flags().BoolVar(&archiveUndo, "undo", false, "restore an archived candidate")
	rootCmd.AddCommand(archiveCmd)
}
