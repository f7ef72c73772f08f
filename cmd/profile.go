package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the ideal customer profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetProfile(cmd.Context(), cfg.Triage.User)
		if eris.Is(err, store.ErrNotFound) {
			fmt.Println("no profile set")
			return nil
		}
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal profile")
		}
		fmt.Println(string(out))
		return nil
	},
}

var profileApplyFile string

var profileApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a profile from a YAML file and rescore all candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(profileApplyFile)
		if err != nil {
			return eris.Wrap(err, "read profile file")
		}

		var p model.ICPProfile
		if err := yaml.Unmarshal(data, &p); err != nil {
			return eris.Wrap(err, "parse profile file")
		}
		p.UserID = cfg.Triage.User

		if err := model.ValidateWeights(p.Weights); err != nil {
			return err
		}
		if err := p.ValidateBuckets(); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveProfile(cmd.Context(), p); err != nil {
			return err
		}

		n, err := icp.NewRescorer(st).Run(cmd.Context(), p.UserID, p)
		if err != nil {
			return err
		}

		zap.L().Info("profile applied", zap.Int("rescored", n))
		fmt.Printf("Profile saved; %d candidates rescored.\n", n)
		return nil
	},
}

var weightFlags struct {
	industry     int
	location     int
	employeeSize int
	revenue      int
}

var profileSetWeightsCmd = &cobra.Command{
	Use:   "set-weights",
	Short: "Update scoring weights and rescore all candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := model.Weights{
			Industry:     weightFlags.industry,
			Location:     weightFlags.location,
			EmployeeSize: weightFlags.employeeSize,
			Revenue:      weightFlags.revenue,
		}
		if err := model.ValidateWeights(w); err != nil {
			return err
		}

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

		p.Weights = w
		if err := st.SaveProfile(cmd.Context(), *p); err != nil {
			return err
		}

		n, err := icp.NewRescorer(st).Run(cmd.Context(), p.UserID, *p)
		if err != nil {
			return err
		}
		fmt.Printf("Weights updated; %d candidates rescored.\n", n)
		return nil
	},
}

func init() {
	profileApplyCmd.Flags().StringVarP(&profileApplyFile, "file", "f", "", "profile YAML file (required)")
	_ = profileApplyCmd.MarkFlagRequired("file")

	profileSetWeightsCmd.Flags().IntVar(&weightFlags.industry, "industry", 0, "industry weight")
	profileSetWeightsCmd.Flags().IntVar(&weightFlags.location, "location", 0, "location weight")
	profileSetWeightsCmd.Flags().IntVar(&weightFlags.employeeSize, "employee-size", 0, "employee size weight")
	profileSetWeightsCmd.Flags().IntVar(&weightFlags.revenue, "revenue", 0, "revenue weight")

	profileCmd.AddCommand(profileShowCmd, profileApplyCmd, profileSetWeightsCmd)
	rootCmd.AddCommand(profileCmd)
}
