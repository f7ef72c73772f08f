package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/enrich"
	"github.com/sells-group/prospect-cli/internal/model"
)

var enrichAllAccepted bool

var enrichCmd = &cobra.Command{
	Use:   "enrich [candidate-id...]",
	Short: "Fetch (or reuse cached) enrichment data for candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client, err := initApollo()
		if err != nil {
			return err
		}
		cache := enrich.NewCache(st, enrich.NewApolloProvider(client))

		ids := args
		if enrichAllAccepted {
			accepted, err := st.ListCandidates(ctx, cfg.Triage.User, model.StatusAccepted)
			if err != nil {
				return err
			}
			for _, c := range accepted {
				ids = append(ids, c.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Println("Nothing to enrich; pass candidate IDs or --accepted.")
			return nil
		}

		window := stalenessWindow()

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Enrich.Concurrency)
		results := make([]*enrich.Result, len(ids))
		for i, id := range ids {
			i, id := i, id
			g.Go(func() error {
				cand, err := st.GetCandidate(ctx, cfg.Triage.User, id)
				if err != nil {
					return err
				}
				res, err := cache.Get(ctx, cfg.Triage.User, enrich.EntityRef{
					ID:     cand.ID,
					Kind:   enrich.KindCompany,
					Name:   cand.Name,
					Domain: cand.Domain,
				}, window)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var degraded int
		for i, res := range results {
			marker := ""
			if res.Degraded {
				marker = " (degraded)"
				degraded++
			}
			fmt.Printf("%s: %s%s\n", ids[i], res.Outcome, marker)
		}
		if degraded > 0 {
			zap.L().Warn("some enrichments served degraded data", zap.Int("count", degraded))
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichAllAccepted, "accepted", false, "enrich every accepted candidate")
	rootCmd.AddCommand(enrichCmd)
}
