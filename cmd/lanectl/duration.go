package main

import (
	"fmt"

	"github.com/prakoso/greenlock/internal/fuzzy"
	"github.com/spf13/cobra"
)

var (
	durationCount   float64
	durationRush    bool
	durationProfile string
)

var durationCmd = &cobra.Command{
	Use:   "duration",
	Short: "Compute the green duration for a vehicle count offline",
	Long: `Run the fuzzy inference for a given vehicle count without touching
the bus. Handy for tuning profiles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := fuzzy.Load(durationProfile)
		if err != nil {
			return err
		}

		d := profile.Duration(durationCount, durationRush)
		fmt.Printf("profile=%s count=%g rush_hour=%v\n", profile.Name, durationCount, durationRush)
		fmt.Printf("membership: few=%.3f medium=%.3f many=%.3f\n",
			profile.Few(durationCount), profile.Medium(durationCount), profile.Many(durationCount))
		fmt.Printf("green duration: %gs\n", d)
		return nil
	},
}

func init() {
	durationCmd.Flags().Float64Var(&durationCount, "count", 0, "vehicle count to evaluate")
	durationCmd.Flags().BoolVar(&durationRush, "rush", false, "evaluate with the rush hour rule set")
	durationCmd.Flags().StringVar(&durationProfile, "profile", "intersection", "fuzzy profile name or TOML file path")
}
