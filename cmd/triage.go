package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/triage"
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Review pending candidates one at a time",
}

var triageRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Interactive review: [a]ccept, [r]eject, [u]ndo, [q]uit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		loc, err := triageLocation()
		if err != nil {
			return err
		}

		q, err := triage.Load(ctx, st, cfg.Triage.User,
			triage.WithDailyLimit(cfg.Triage.DailyLimit),
			triage.WithLocation(loc),
			triage.WithFirstAcceptHook(firstAcceptPrompt),
		)
		if err != nil {
			return err
		}

		if q.State() == triage.StateIdle {
			fmt.Println("No candidates yet; run discover first.")
			return nil
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			cur, ok := q.Current()
			if !ok {
				fmt.Println("Queue exhausted; run discover to find more candidates.")
				return nil
			}
			printCandidate(cur, q.Remaining())

			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}

			switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
			case "a":
				err = q.Decide(ctx, triage.DirectionAccept)
				if eris.Is(err, triage.ErrQuotaExceeded) {
					fmt.Println("Daily accept limit reached; review your accepted list or come back tomorrow.")
					continue
				}
				if err != nil {
					return err
				}
				fmt.Printf("Accepted %s (%d accepts left today).\n", cur.Name, q.Remaining())
			case "r":
				if err := q.Decide(ctx, triage.DirectionReject); err != nil {
					return err
				}
				fmt.Printf("Rejected %s.\n", cur.Name)
			case "u":
				if err := q.Undo(ctx); err != nil {
					return err
				}
				fmt.Println("Last decision undone.")
			case "q":
				return nil
			default:
				fmt.Println("Commands: [a]ccept, [r]eject, [u]ndo, [q]uit")
			}
		}
	},
}

var triageStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and remaining daily accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		loc, err := triageLocation()
		if err != nil {
			return err
		}

		q, err := triage.Load(ctx, st, cfg.Triage.User,
			triage.WithDailyLimit(cfg.Triage.DailyLimit),
			triage.WithLocation(loc),
		)
		if err != nil {
			return err
		}

		accepted, err := st.ListCandidates(ctx, cfg.Triage.User, model.StatusAccepted)
		if err != nil {
			return err
		}

		fmt.Printf("State:             %s\n", q.State())
		fmt.Printf("Accepted total:    %d\n", len(accepted))
		fmt.Printf("Accepts left today: %d\n", q.Remaining())
		return nil
	},
}

// firstAcceptPrompt is the one-time bootstrap shown after the user's
// first-ever accept. The queue persists the prompt flag as part of the
// decision, so this only prints.
func firstAcceptPrompt(_ context.Context, c model.Candidate) {
	fmt.Printf("\nFirst accept! Run `prospect-cli enrich %s` to pull company data before reaching out.\n\n", c.ID)
}

func printCandidate(c model.Candidate, remaining int) {
	fmt.Printf("\n%s  (score %d, %d accepts left today)\n", c.Name, c.FitScore, remaining)
	if c.Domain != "" {
		fmt.Printf("  %s\n", c.Domain)
	}
	if c.Industry != "" || c.Location != "" {
		fmt.Printf("  %s | %s\n", c.Industry, c.Location)
	}
	if c.EmployeeSizeRange != "" {
		fmt.Printf("  %s employees", c.EmployeeSizeRange)
		if c.RevenueRange != "" {
			fmt.Printf(", %s revenue", c.RevenueRange)
		}
		fmt.Println()
	}
}

func init() {
	triageCmd.AddCommand(triageRunCmd, triageStatusCmd)
	rootCmd.AddCommand(triageCmd)
}
