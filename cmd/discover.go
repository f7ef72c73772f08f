package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/apollo"
)

var discoverFlags struct {
	pages   int
	perPage int
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search Apollo for companies matching the profile and queue them as candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetProfile(ctx, cfg.Triage.User)
		if eris.Is(err, store.ErrNotFound) {
			return eris.New("no profile set; run profile apply first")
		}
		if err != nil {
			return err
		}

		client, err := initApollo()
		if err != nil {
			return err
		}

		locations := p.Locations
		if p.IsNationwide {
			locations = nil
		}

		var candidates []model.Candidate
		for page := 1; page <= discoverFlags.pages; page++ {
			results, err := client.SearchCompanies(ctx, apollo.SearchQuery{
				Industries:     p.Industries,
				Locations:      locations,
				EmployeeRanges: p.CompanySizeRanges,
				Page:           page,
				PerPage:        discoverFlags.perPage,
			})
			if err != nil {
				return err
			}
			if len(results) == 0 {
				break
			}
			for _, r := range results {
				candidates = append(candidates, candidateFromSearch(r, p.UserID))
			}
		}

		for i := range candidates {
			candidates[i].FitScore = icp.Score(candidates[i], *p)
		}

		inserted, err := st.UpsertCandidates(ctx, p.UserID, candidates)
		if err != nil {
			return err
		}

		zap.L().Info("discovery complete",
			zap.Int("found", len(candidates)),
			zap.Int64("new", inserted),
		)
		fmt.Printf("%d companies found, %d new candidates queued.\n", len(candidates), inserted)
		return nil
	},
}

// candidateFromSearch maps an Apollo search hit onto a pending candidate.
// Revenue is not available from search results; those candidates score
// zero on the revenue factor until enriched.
func candidateFromSearch(r apollo.CompanyResult, userID string) model.Candidate {
	id := r.ID
	if id == "" {
		// Search hits without a provider id still get a stable row.
		id = uuid.NewString()
	}
	return model.Candidate{
		ID:                id,
		UserID:            userID,
		Name:              r.Name,
		Domain:            r.Domain,
		Website:           r.WebsiteURL,
		City:              r.City,
		State:             r.State,
		Industry:          r.Industry,
		Location:          r.State,
		EmployeeSizeRange: employeeBucket(r.EmployeeCount),
		Status:            model.StatusPending,
	}
}

// employeeBucket maps a headcount onto the canonical ordinal buckets.
func employeeBucket(count int) string {
	switch {
	case count <= 0:
		return ""
	case count <= 10:
		return "1-10"
	case count <= 50:
		return "11-50"
	case count <= 200:
		return "51-200"
	case count <= 500:
		return "201-500"
	case count <= 1000:
		return "501-1000"
	case count <= 5000:
		return "1001-5000"
	default:
		return "5001+"
	}
}

func init() {
	discoverCmd.Flags().IntVar(&discoverFlags.pages, "pages", 1, "number of search pages to fetch")
	discoverCmd.Flags().IntVar(&discoverFlags.perPage, "per-page", 25, "results per page")
	rootCmd.AddCommand(discoverCmd)
}
