package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/store"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute fit scores for all candidates under the current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetProfile(cmd.Context(), cfg.Triage.User)
		if eris.Is(err, store.ErrNotFound) {
			return eris.New("no profile set; run profile apply first")
		}
		if err != nil {
			return err
		}

		n, err := icp.NewRescorer(st).Run(cmd.Context(), p.UserID, *p)
		if err != nil {
			return err
		}
		fmt.Printf("%d candidates rescored.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescoreCmd)
}
